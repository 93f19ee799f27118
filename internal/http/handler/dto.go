package handler

import "github.com/go-playground/validator/v10"

var validate = validator.New()

type registerRequest struct {
	FirstName string `json:"first_name" validate:"required,min=2,max=100"`
	LastName  string `json:"last_name" validate:"required,min=2,max=100"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6,max=100"`
	Address   string `json:"address" validate:"max=255"`
	Role      string `json:"role" validate:"omitempty,max=50"`
}

func (r registerRequest) Validate() error {
	return validate.Struct(r)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (r loginRequest) Validate() error {
	return validate.Struct(r)
}

type updateProfileRequest struct {
	FirstName *string `json:"first_name" validate:"omitempty,min=2,max=100"`
	LastName  *string `json:"last_name" validate:"omitempty,min=2,max=100"`
	Email     *string `json:"email" validate:"omitempty,email"`
	Address   *string `json:"address" validate:"omitempty,max=255"`
}

func (r updateProfileRequest) Validate() error {
	return validate.Struct(r)
}

type createRoleRequest struct {
	Name string `json:"name" validate:"required,min=2,max=50"`
}

func (r createRoleRequest) Validate() error {
	return validate.Struct(r)
}

type assignRoleRequest struct {
	Role string `json:"role" validate:"required,min=2,max=50"`
}

func (r assignRoleRequest) Validate() error {
	return validate.Struct(r)
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (r forgotPasswordRequest) Validate() error {
	return validate.Struct(r)
}

type resetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6,max=100"`
}

func (r resetPasswordRequest) Validate() error {
	return validate.Struct(r)
}
