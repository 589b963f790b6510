package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/yourusername/member-gate/internal/password"
	"github.com/yourusername/member-gate/internal/user"
)

// RegistrationInput は新規登録フォームの内容です。
type RegistrationInput struct {
	Name     string `validate:"required,min=7"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8,max=72"`
}

// Registrar は入力検証・ハッシュ化・保存をまとめて行います。
type Registrar struct {
	users    user.Store
	hasher   password.Hasher
	validate *validator.Validate
}

// NewRegistrar は Registrar を作成します。
func NewRegistrar(users user.Store, hasher password.Hasher) *Registrar {
	return &Registrar{
		users:    users,
		hasher:   hasher,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Register はユーザーを登録します。
// 検証エラーはハッシュ計算やストアへの書き込みより前に *ValidationError で返します。
// 重複は user.ErrConflict です。
func (r *Registrar) Register(ctx context.Context, in RegistrationInput) (*user.User, error) {
	if err := r.validateInput(in); err != nil {
		return nil, err
	}

	// 明らかな重複はハッシュ計算の前に弾く。最終判定は Insert の一意制約で行う
	if _, err := r.users.FindByEmail(ctx, in.Email); err == nil {
		return nil, user.ErrConflict
	} else if !errors.Is(err, user.ErrNotFound) {
		return nil, err
	}

	hashed, err := r.hasher.Hash(ctx, in.Password)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooLong) {
			return nil, &ValidationError{Fields: map[string]string{"password": "must be at most 72 bytes"}}
		}
		return nil, err
	}

	stored, err := r.users.Insert(ctx, &user.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hashed,
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (r *Registrar) validateInput(in RegistrationInput) error {
	err := r.validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate registration: %w", err)
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fieldName(fe.Field())] = describe(fe)
	}
	return &ValidationError{Fields: fields}
}

func fieldName(structField string) string {
	switch structField {
	case "Name":
		return "name"
	case "Email":
		return "email"
	case "Password":
		return "password"
	default:
		return structField
	}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "email":
		return "must be a valid email address"
	default:
		return "is invalid"
	}
}
