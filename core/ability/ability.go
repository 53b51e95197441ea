package ability

import (
	"sort"

	"github.com/darasahq/darasa/core/profile"
)

// Action is the closed set of things a user may do to a Subject.
type Action string

const (
	ActionRead   Action = "read"
	ActionManage Action = "manage"
)

// Subject is the closed set of resources permission checks run against.
type Subject string

const (
	SubjectProfile      Subject = "profile"
	SubjectCourse       Subject = "course"
	SubjectLesson       Subject = "lesson"
	SubjectTask         Subject = "task"
	SubjectAttendance   Subject = "attendance"
	SubjectClass        Subject = "class"
	SubjectStudent      Subject = "student"
	SubjectUser         Subject = "user"
	SubjectCompany      Subject = "company"
	SubjectSubscription Subject = "subscription"
)

// Identity is the input to Derive. A zero ID with RoleStudent is the guest
// identity; it yields exactly the same predicate as a real student's.
type Identity struct {
	ID   string
	Role profile.Role
}

// Rule is one granted (action, subject) pair.
type Rule struct {
	Action  Action  `json:"action"`
	Subject Subject `json:"subject"`
}

var (
	studentRules = []Rule{
		{ActionRead, SubjectProfile},
		{ActionRead, SubjectCourse},
		{ActionRead, SubjectLesson},
		{ActionRead, SubjectTask},
		{ActionRead, SubjectAttendance},
	}

	teacherRules = append([]Rule{
		{ActionManage, SubjectLesson},
		{ActionManage, SubjectAttendance},
		{ActionManage, SubjectTask},
		{ActionRead, SubjectClass},
		{ActionRead, SubjectStudent},
	}, studentRules...)

	adminRules = append([]Rule{
		{ActionManage, SubjectCompany},
		{ActionManage, SubjectSubscription},
		{ActionManage, SubjectUser},
		{ActionManage, SubjectClass},
		{ActionManage, SubjectCourse},
		{ActionManage, SubjectStudent},
	}, teacherRules...)

	ruleTable = map[profile.Role][]Rule{
		profile.RoleStudent: studentRules,
		profile.RoleTeacher: teacherRules,
		profile.RoleAdmin:   adminRules,
	}
)

// Ability is a capability-check predicate closed over the static rule table.
type Ability struct {
	identity Identity
	granted  map[Rule]struct{}
}

// Derive builds the Ability for identity. It is pure, deterministic and total:
// a role outside the table falls back to student rules so permission checks
// never run against an undefined ability.
func Derive(identity Identity) Ability {
	rules, ok := ruleTable[identity.Role]
	if !ok {
		rules = ruleTable[profile.RoleStudent]
	}
	granted := make(map[Rule]struct{}, len(rules))
	for _, r := range rules {
		granted[r] = struct{}{}
	}
	return Ability{identity: identity, granted: granted}
}

// Guest returns the minimal-privilege ability used when no authenticated
// user/role exists.
func Guest() Ability {
	return Derive(Identity{ID: "", Role: profile.RoleStudent})
}

func (a Ability) Identity() Identity { return a.identity }

// Can reports whether the identity may perform action on subject.
// manage implies read on the same subject.
func (a Ability) Can(action Action, subject Subject) bool {
	if _, ok := a.granted[Rule{action, subject}]; ok {
		return true
	}
	if action == ActionRead {
		_, ok := a.granted[Rule{ActionManage, subject}]
		return ok
	}
	return false
}

// Rules returns the granted pairs in a stable order (for snapshots and tests).
func (a Ability) Rules() []Rule {
	rules := make([]Rule, 0, len(a.granted))
	for r := range a.granted {
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Subject != rules[j].Subject {
			return rules[i].Subject < rules[j].Subject
		}
		return rules[i].Action < rules[j].Action
	})
	return rules
}
