package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRegister(t *testing.T) {
	errs := ValidateRegister("alice@example.com", "alice", "Alice", "Sup3rSecret")
	assert.False(t, errs.HasErrors())

	errs = ValidateRegister("not-an-email", "a", "", "short")
	assert.Contains(t, errs, "email")
	assert.Contains(t, errs, "username")
	assert.Contains(t, errs, "display_name")
	assert.Contains(t, errs, "password")
}

func TestValidatePasswordComposition(t *testing.T) {
	errs := ValidateRegister("alice@example.com", "alice", "Alice", "alllowercase1")
	assert.Contains(t, errs["password"], "one uppercase letter")

	errs = ValidateRegister("alice@example.com", "alice", "Alice", "NoDigitsHere")
	assert.Contains(t, errs["password"], "one number")
}

func TestValidateLogin(t *testing.T) {
	errs := ValidateLogin("alice@example.com", "whatever")
	assert.False(t, errs.HasErrors())

	errs = ValidateLogin("", "")
	assert.Contains(t, errs, "email")
	assert.Contains(t, errs, "password")
}

func TestValidateMessage(t *testing.T) {
	assert.False(t, ValidateMessage("hello").HasErrors())
	assert.True(t, ValidateMessage("   ").HasErrors())
	assert.True(t, ValidateMessage("").HasErrors())
	assert.False(t, ValidateMessage(strings.Repeat("a", 4000)).HasErrors())
	assert.True(t, ValidateMessage(strings.Repeat("a", 4001)).HasErrors())
}
