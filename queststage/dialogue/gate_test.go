package dialogue

import (
	"reflect"
	"testing"
	"time"

	"github.com/queststage/queststage/queststage/database/models"
)

func TestParseGate(t *testing.T) {
	tests := []struct {
		name string
		spec *models.GateSpec
		want Gate
	}{
		{
			name: "nil spec",
			spec: nil,
			want: Immediate{},
		},
		{
			name: "explicit immediate",
			spec: &models.GateSpec{Kind: models.GateImmediate},
			want: Immediate{},
		},
		{
			name: "unknown kind",
			spec: &models.GateSpec{Kind: "lunar_phase"},
			want: Immediate{},
		},
		{
			name: "scheduled rfc3339",
			spec: &models.GateSpec{Kind: models.GateScheduled, ScheduledAt: "2026-08-29T14:30:00Z"},
			want: Scheduled{At: time.Date(2026, 8, 29, 14, 30, 0, 0, time.UTC)},
		},
		{
			name: "scheduled without offset is utc",
			spec: &models.GateSpec{Kind: models.GateScheduled, ScheduledAt: "2026-08-29T14:30:00"},
			want: Scheduled{At: time.Date(2026, 8, 29, 14, 30, 0, 0, time.UTC)},
		},
		{
			name: "scheduled minute precision",
			spec: &models.GateSpec{Kind: models.GateScheduled, ScheduledAt: "2026-08-29T14:30"},
			want: Scheduled{At: time.Date(2026, 8, 29, 14, 30, 0, 0, time.UTC)},
		},
		{
			name: "scheduled missing timestamp",
			spec: &models.GateSpec{Kind: models.GateScheduled},
			want: Immediate{},
		},
		{
			name: "scheduled garbage timestamp",
			spec: &models.GateSpec{Kind: models.GateScheduled, ScheduledAt: "soon"},
			want: Immediate{},
		},
		{
			name: "after station",
			spec: &models.GateSpec{Kind: models.GateAfterStation, StationID: 7},
			want: AfterStation{StationID: 7},
		},
		{
			name: "after station missing id",
			spec: &models.GateSpec{Kind: models.GateAfterStation},
			want: Immediate{},
		},
		{
			name: "after message",
			spec: &models.GateSpec{Kind: models.GateAfterMessage, AfterMessageID: 42},
			want: AfterMessage{MessageID: 42},
		},
		{
			name: "after message missing id",
			spec: &models.GateSpec{Kind: models.GateAfterMessage},
			want: Immediate{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseGate(tt.spec); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseGate() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestVisible(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	holdUntil := now.Add(time.Hour)
	expiredHold := now.Add(-time.Hour)

	tests := []struct {
		name string
		msg  *models.DialogueMessage
		pctx *PlayerContext
		want bool
	}{
		{
			name: "no gate",
			msg:  &models.DialogueMessage{ID: 1},
			pctx: &PlayerContext{Now: now},
			want: true,
		},
		{
			name: "scheduled in future",
			msg: &models.DialogueMessage{ID: 1, Gate: &models.GateSpec{
				Kind: models.GateScheduled, ScheduledAt: "2026-08-29T13:00:00Z",
			}},
			pctx: &PlayerContext{Now: now},
			want: false,
		},
		{
			name: "scheduled at the exact instant",
			msg: &models.DialogueMessage{ID: 1, Gate: &models.GateSpec{
				Kind: models.GateScheduled, ScheduledAt: "2026-08-29T12:00:00Z",
			}},
			pctx: &PlayerContext{Now: now},
			want: true,
		},
		{
			name: "station not visited",
			msg: &models.DialogueMessage{ID: 1, Gate: &models.GateSpec{
				Kind: models.GateAfterStation, StationID: 3,
			}},
			pctx: &PlayerContext{Now: now},
			want: false,
		},
		{
			name: "station visited",
			msg: &models.DialogueMessage{ID: 1, Gate: &models.GateSpec{
				Kind: models.GateAfterStation, StationID: 3,
			}},
			pctx: &PlayerContext{Now: now, VisitedStationIDs: map[int64]struct{}{3: {}}},
			want: true,
		},
		{
			name: "reply prerequisite missing",
			msg: &models.DialogueMessage{ID: 2, Gate: &models.GateSpec{
				Kind: models.GateAfterMessage, AfterMessageID: 1,
			}},
			pctx: &PlayerContext{Now: now},
			want: false,
		},
		{
			name: "reply prerequisite met",
			msg: &models.DialogueMessage{ID: 2, Gate: &models.GateSpec{
				Kind: models.GateAfterMessage, AfterMessageID: 1,
			}},
			pctx: &PlayerContext{Now: now, RepliedMessageIDs: map[int64]struct{}{1: {}}},
			want: true,
		},
		{
			name: "active hold suppresses ungated message",
			msg:  &models.DialogueMessage{ID: 1},
			pctx: &PlayerContext{Now: now, Override: &models.ThreadOverride{HoldUntil: &holdUntil}},
			want: false,
		},
		{
			name: "expired hold has no effect",
			msg:  &models.DialogueMessage{ID: 1},
			pctx: &PlayerContext{Now: now, Override: &models.ThreadOverride{HoldUntil: &expiredHold}},
			want: true,
		},
		{
			name: "force reveal wins over hold",
			msg: &models.DialogueMessage{ID: 5, Gate: &models.GateSpec{
				Kind: models.GateScheduled, ScheduledAt: "2026-08-29T13:00:00Z",
			}},
			pctx: &PlayerContext{Now: now, Override: &models.ThreadOverride{
				HoldUntil:             &holdUntil,
				ForceRevealMessageIDs: []int64{5},
			}},
			want: true,
		},
		{
			name: "force reveal of another message does not leak",
			msg: &models.DialogueMessage{ID: 6, Gate: &models.GateSpec{
				Kind: models.GateScheduled, ScheduledAt: "2026-08-29T13:00:00Z",
			}},
			pctx: &PlayerContext{Now: now, Override: &models.ThreadOverride{
				ForceRevealMessageIDs: []int64{5},
			}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Visible(tt.msg, tt.pctx); got != tt.want {
				t.Errorf("Visible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAudienceMatches(t *testing.T) {
	tests := []struct {
		name     string
		audience string
		role     string
		want     bool
	}{
		{"team message matches role A", models.AudienceTeam, models.AudienceRoleA, true},
		{"team message matches empty role", models.AudienceTeam, "", true},
		{"role A message matches role A", models.AudienceRoleA, models.AudienceRoleA, true},
		{"role A message hidden from role B", models.AudienceRoleA, models.AudienceRoleB, false},
		{"role B message hidden from empty role", models.AudienceRoleB, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &models.DialogueMessage{Audience: tt.audience}
			if got := AudienceMatches(msg, tt.role); got != tt.want {
				t.Errorf("AudienceMatches() = %v, want %v", got, tt.want)
			}
		})
	}
}
