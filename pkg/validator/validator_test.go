package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type target struct {
	Name  string   `json:"name" validate:"required"`
	Hosts []string `json:"hosts" validate:"required,min=1,dive,hostport"`
	IV    string   `json:"iv" validate:"hexstr"`
}

func TestValidate(t *testing.T) {
	v := New()

	tests := []struct {
		name  string
		in    target
		valid bool
		tag   string
	}{
		{"ok", target{Name: "local", Hosts: []string{"localhost:27017"}}, true, ""},
		{"ipv6", target{Name: "v6", Hosts: []string{"[::1]:27017"}}, true, ""},
		{"missing name", target{Hosts: []string{"localhost:27017"}}, false, "required"},
		{"no port", target{Name: "x", Hosts: []string{"localhost"}}, false, TagHostPort},
		{"bad port", target{Name: "x", Hosts: []string{"localhost:99999"}}, false, TagHostPort},
		{"bad hex", target{Name: "x", Hosts: []string{"h:1"}, IV: "zz"}, false, TagHexStr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := v.ValidateWithLang(tt.in, LangEN)
			if tt.valid {
				assert.Nil(t, errs)
				assert.NoError(t, v.Validate(tt.in))
				return
			}
			require.True(t, errs.HasErrors())
			assert.Equal(t, tt.tag, errs.Errors[0].Tag)
		})
	}
}

func TestValidateWithLangTranslates(t *testing.T) {
	v := New()
	in := target{Name: "x", Hosts: []string{"nohost"}}

	en := v.ValidateWithLang(in, LangEN)
	require.Len(t, en.Errors, 1)
	assert.Equal(t, "hosts[0]", en.Errors[0].Field[len("target."):])
	assert.Contains(t, en.First(), "host:port")
	assert.Contains(t, en.Error(), "validation failed: ")

	zh := v.ValidateWithLang(in, LangZH)
	require.Len(t, zh.Errors, 1)
	assert.Contains(t, zh.First(), "host:port 格式")

	fallback := v.ValidateWithLang(in, "fr")
	assert.Equal(t, en.First(), fallback.First())
}

func TestRegisterTranslation(t *testing.T) {
	v := New()
	v.RegisterTranslation("required", "{0} is mandatory", "{0} 必填")

	errs := v.ValidateWithLang(target{Hosts: []string{"h:1"}}, LangEN)
	require.True(t, errs.HasErrors())
	assert.Equal(t, "name is mandatory", errs.First())

	var none *ValidationErrors
	assert.False(t, none.HasErrors())
	assert.Empty(t, none.First())
}
