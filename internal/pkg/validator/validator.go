package validator

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const (
	UsernameMinLen = 3
	UsernameMaxLen = 20
	PasswordMinLen = 8

	passwordSpecials = "!@#$%^&*"
)

var imageDataURL = regexp.MustCompile(`^data:image/(png|jpeg|jpg|webp|gif);base64,[A-Za-z0-9+/]+={0,2}$`)

var validate *validator.Validate

func init() {
	validate = validator.New()
	if err := RegisterRules(validate); err != nil {
		panic(err)
	}
}

// RegisterRules adds the project tags (strongpassword, username, imagedataurl)
// to v.
func RegisterRules(v *validator.Validate) error {
	if err := v.RegisterValidation("strongpassword", func(fl validator.FieldLevel) bool {
		return StrongPassword(fl.Field().String())
	}); err != nil {
		return err
	}
	if err := v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return ValidUsername(fl.Field().String())
	}); err != nil {
		return err
	}
	return v.RegisterValidation("imagedataurl", func(fl validator.FieldLevel) bool {
		return imageDataURL.MatchString(fl.Field().String())
	})
}

// RegisterGin installs the rules into gin's default binding engine so that
// `binding:"strongpassword"` works in request DTOs.
func RegisterGin() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("validator: gin binding engine is not go-playground/validator")
	}
	return RegisterRules(v)
}

// StrongPassword requires at least eight characters including an upper case
// letter, a lower case letter, a digit and one of !@#$%^&*.
func StrongPassword(s string) bool {
	if utf8.RuneCountInString(s) < PasswordMinLen {
		return false
	}
	var upper, lower, digit, special bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		}
	}
	return upper && lower && digit && special
}

func ValidUsername(s string) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(s))
	return n >= UsernameMinLen && n <= UsernameMaxLen
}

// Validate struct fields
func Validate(v interface{}) map[string]string {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"_": err.Error()}
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}

// Describe turns binding errors into field -> tag pairs for the error envelope.
func Describe(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[strings.ToLower(fe.Field()[:1])+fe.Field()[1:]] = fe.Tag()
	}
	return out
}
