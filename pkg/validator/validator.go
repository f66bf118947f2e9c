// Package validator runs go-playground/validator with JSON field names and
// messages translated to English or Chinese.
package validator

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/locales"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
)

// Supported message languages.
const (
	LangEN = "en"
	LangZH = "zh"
)

// Validator is not safe for registration once it is shared. Register all
// rules first, then validate from any goroutine.
type Validator struct {
	validate *validator.Validate
	trans    map[string]ut.Translator
}

type defaultsFunc func(*validator.Validate, ut.Translator) error

// New returns a Validator with the default messages and the hostport and
// hexstr rules.
func New() *Validator {
	v := &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		trans:    map[string]ut.Translator{},
	}
	v.validate.RegisterTagNameFunc(jsonName)

	uni := ut.New(en.New(), en.New(), zh.New())
	for _, l := range []struct {
		loc      locales.Translator
		defaults defaultsFunc
	}{
		{en.New(), en_translations.RegisterDefaultTranslations},
		{zh.New(), zh_translations.RegisterDefaultTranslations},
	} {
		tr, _ := uni.GetTranslator(l.loc.Locale())
		if err := l.defaults(v.validate, tr); err != nil {
			panic(fmt.Sprintf("validator: %s translations: %v", l.loc.Locale(), err))
		}
		v.trans[l.loc.Locale()] = tr
	}

	v.registerRules()
	return v
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	default:
		return name
	}
}

// Validate returns the raw validator error.
func (v *Validator) Validate(s interface{}) error {
	return v.validate.Struct(s)
}

// ValidateWithLang returns nil when s is valid, otherwise the failures with
// messages in lang. Unknown languages fall back to English.
func (v *Validator) ValidateWithLang(s interface{}, lang string) *ValidationErrors {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	fes, ok := err.(validator.ValidationErrors)
	if !ok {
		return &ValidationErrors{Errors: []FieldError{{Message: err.Error()}}}
	}

	tr, ok := v.trans[lang]
	if !ok {
		tr = v.trans[LangEN]
	}
	out := &ValidationErrors{Errors: make([]FieldError, len(fes))}
	for i, fe := range fes {
		out.Errors[i] = FieldError{
			Field:   fe.Namespace(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: fe.Translate(tr),
		}
	}
	return out
}

// RegisterStructValidation adds a struct level rule for types.
func (v *Validator) RegisterStructValidation(fn validator.StructLevelFunc, types ...interface{}) {
	v.validate.RegisterStructValidation(fn, types...)
}

// RegisterTranslation sets the messages for tag. {0} is the field name and
// {1} the tag parameter.
func (v *Validator) RegisterTranslation(tag, messageEN, messageZH string) {
	for lang, msg := range map[string]string{LangEN: messageEN, LangZH: messageZH} {
		msg := msg
		_ = v.validate.RegisterTranslation(tag, v.trans[lang],
			func(tr ut.Translator) error { return tr.Add(tag, msg, true) },
			func(tr ut.Translator, fe validator.FieldError) string {
				s, _ := tr.T(tag, fe.Field(), fe.Param())
				return s
			},
		)
	}
}
