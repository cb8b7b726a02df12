package dialogue

import (
	"github.com/queststage/queststage/queststage/database/models"
)

// ThreadVisible decides whether a whole thread is open to a team.
//
// LEAKED threads are ambient: visible unless an authored start config gates
// them and the team has not been unlocked yet. INTERACTIVE threads are
// opt-in: visible only when they both carry a start config and the unlock
// row exists. With no unlock path they never appear.
func ThreadVisible(thread *models.DialogueThread, hasStartConfig, unlocked bool) bool {
	switch thread.Kind {
	case models.ThreadKindInteractive:
		return hasStartConfig && unlocked
	default:
		return !hasStartConfig || unlocked
	}
}

// RoleCanRead reports whether the thread has any content the given
// normalized role could ever see: the thread-level target-role restriction
// admits the role and at least one message's audience is satisfiable.
// A thread with zero reachable messages for the role is never listed.
func RoleCanRead(thread *models.DialogueThread, role string) bool {
	if tr := thread.Config.TargetRole; tr != "" && tr != role {
		return false
	}
	for _, m := range thread.Messages {
		if AudienceMatches(m, role) {
			return true
		}
	}
	return false
}

// FilterThreads returns the threads the player may see, in stable input
// order. configIDs is the set of thread ids bearing a start config and
// unlockedIDs the team's unlock set.
func FilterThreads(threads []*models.DialogueThread, configIDs, unlockedIDs map[int64]struct{}, role string) []*models.DialogueThread {
	var visible []*models.DialogueThread
	for _, t := range threads {
		_, hasCfg := configIDs[t.ID]
		_, unlocked := unlockedIDs[t.ID]
		if !ThreadVisible(t, hasCfg, unlocked) {
			continue
		}
		if !RoleCanRead(t, role) {
			continue
		}
		visible = append(visible, t)
	}
	return visible
}
