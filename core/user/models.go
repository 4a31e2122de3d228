package user

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/unicover/lms/core"
)

// Role is the closed set of account roles. Every decision point matches
// on these constants; raw string comparisons are not used.
type Role string

const (
	RoleGuest        Role = "guest"
	RoleStudent      Role = "student"
	RoleTeacher      Role = "teacher"
	RolePDEKMember   Role = "pdek_member"
	RolePDEKChairman Role = "pdek_chairman"
	RoleAdmin        Role = "admin"
)

// ReviewerRoles are the roles snapshotted onto a protocol's signature
// slots at creation time.
var ReviewerRoles = []Role{RolePDEKMember, RolePDEKChairman}

var AllRoles = []Role{RoleGuest, RoleStudent, RoleTeacher, RolePDEKMember, RolePDEKChairman, RoleAdmin}

func (r Role) Valid() bool {
	switch r {
	case RoleGuest, RoleStudent, RoleTeacher, RolePDEKMember, RolePDEKChairman, RoleAdmin:
		return true
	}
	return false
}

func (r Role) IsReviewer() bool {
	return r == RolePDEKMember || r == RolePDEKChairman
}

func (r Role) String() string { return string(r) }

type User struct {
	ID           string    `json:"id"`
	Phone        string    `json:"phone"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	IIN          string    `json:"iin,omitempty"`
	Role         Role      `json:"role"`
	City         string    `json:"city,omitempty"`
	Organization string    `json:"organization,omitempty"`
	IsActive     *bool     `json:"is_active"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) SetActive(active bool) {
	u.IsActive = &active
}

func (u *User) Active() bool {
	return u.IsActive != nil && *u.IsActive
}

func (u *User) IsAdmin() bool    { return u.Role == RoleAdmin }
func (u *User) IsStudent() bool  { return u.Role == RoleStudent }
func (u *User) IsReviewer() bool { return u.Role.IsReviewer() }

// DisplayName falls back to the phone number when no full name is set.
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Phone
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	FullName        string `json:"full_name" validate:"required"`
	Phone           string `json:"phone" validate:"required,phone"`
	Email           string `json:"email" validate:"omitempty,email"`
	IIN             string `json:"iin" validate:"omitempty,len=12,numeric"`
	Role            Role   `json:"role" validate:"omitempty,role"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) Validate(validate *validator.Validate, svc Service) error {
	nu.FullName = core.CleanString(nu.FullName)
	nu.Phone = core.NormalizePhone(nu.Phone)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	if nu.Role == "" {
		nu.Role = RoleStudent
	}

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(nu.Phone, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	FullName        string `json:"full_name"`
	Phone           string `json:"phone" validate:"omitempty,phone"`
	Email           string `json:"email" validate:"omitempty,email"`
	Role            Role   `json:"role" validate:"omitempty,role"`
	IsActive        *bool  `json:"is_active"`
	Password        string `json:"password" validate:"omitempty"`
	PasswordConfirm string `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(origUsr User, validate *validator.Validate, svc Service) error {
	if name := core.CleanString(uu.FullName); name != "" {
		uu.FullName = name
	} else {
		uu.FullName = origUsr.FullName
	}

	if phone := core.NormalizePhone(uu.Phone); phone != "" {
		uu.Phone = phone
	} else {
		uu.Phone = origUsr.Phone
	}

	if email := core.CleanString(uu.Email, true /* lower */); email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}

	if uu.Role == "" {
		uu.Role = origUsr.Role
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(uu.Phone, uu.Email, origUsr)
}

type QueryFilter struct {
	Search      string    `query:"search"`
	Roles       []Role    `query:"role"`
	IsActive    *bool     `query:"is_active"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// GetFilter selects a single user by exactly one of its fields.
type GetFilter struct {
	ID           string
	Phone        string
	Email        string
	PhoneOrEmail []string
}

var (
	roleTag  = "role"
	roleText = "unknown role"
)

// InitValidators registers the user package's custom validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(roleTag, func(fl validator.FieldLevel) bool {
		return Role(fl.Field().String()).Valid()
	})
	core.RegisterCustomTranslation(validate, translator, roleTag, roleText)
}
