package domain

// ExpenseCategory classifies an expense claim. The set mirrors the categories
// the submission flow offers.
type ExpenseCategory string

const (
	CategoryTravel         ExpenseCategory = "travel"
	CategoryMeals          ExpenseCategory = "meals"
	CategorySoftware       ExpenseCategory = "software"
	CategoryOfficeSupplies ExpenseCategory = "office_supplies"
	CategoryOther          ExpenseCategory = "other"
)

var validCategories = map[ExpenseCategory]bool{
	CategoryTravel:         true,
	CategoryMeals:          true,
	CategorySoftware:       true,
	CategoryOfficeSupplies: true,
	CategoryOther:          true,
}

// ParseExpenseCategory constructs an ExpenseCategory from external input.
func ParseExpenseCategory(s string) (ExpenseCategory, error) {
	c := ExpenseCategory(s)
	if !validCategories[c] {
		return "", errInvalidEnum("expense category", s)
	}
	return c, nil
}

func (c ExpenseCategory) String() string { return string(c) }

// Role is a directory user's organizational role. Rule approver references
// may name a role ("finance") that the directory resolves to concrete users.
type Role string

const (
	RoleDirector Role = "director"
	RoleFinance  Role = "finance"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
)

var validRoles = map[Role]bool{
	RoleDirector: true,
	RoleFinance:  true,
	RoleManager:  true,
	RoleEmployee: true,
}

// ParseRole constructs a Role from external input.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !validRoles[r] {
		return "", errInvalidEnum("role", s)
	}
	return r, nil
}

func (r Role) String() string { return string(r) }
