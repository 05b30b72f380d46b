package agent

// Role selects the conversational persona an agent speaks with.
type Role string

const (
	RoleLanguagePartner    Role = "language_partner"
	RoleInterviewCoach     Role = "interview_coach"
	RolePronunciationTutor Role = "pronunciation_tutor"
)

// Roles lists every supported role.
func Roles() []Role {
	return []Role{RoleLanguagePartner, RoleInterviewCoach, RolePronunciationTutor}
}

// Valid reports whether the role is one of the supported personas.
func (r Role) Valid() bool {
	switch r {
	case RoleLanguagePartner, RoleInterviewCoach, RolePronunciationTutor:
		return true
	}
	return false
}

// ParseRole maps a raw string onto a supported role, defaulting to the
// language partner when the value is empty or unknown.
func ParseRole(raw string) Role {
	role := Role(raw)
	if role.Valid() {
		return role
	}
	return RoleLanguagePartner
}
