package model

type User struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Registration carries the fields needed to create an account.
// PasswordConfirm never leaves the client.
type Registration struct {
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8,max=128,password"`
	PasswordConfirm string `json:"-" validate:"eqfield=Password"`
	FirstName       string `json:"firstName" validate:"required,max=80"`
	LastName        string `json:"lastName" validate:"required,max=80"`
}

// Credentials is the access/renewal pair held by a credential store.
type Credentials struct {
	Access  string
	Renewal string
}

func (c Credentials) Empty() bool {
	return c.Access == "" && c.Renewal == ""
}
