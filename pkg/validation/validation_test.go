package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Title    string `json:"title" validate:"required,min=3,max=10"`
	Email    string `json:"email" validate:"omitempty,email"`
	Category string `json:"category" validate:"required,category"`
	Priority string `json:"priority" validate:"omitempty,priority"`
	Status   string `json:"status" validate:"omitempty,status"`
	Phone    string `json:"phone" validate:"omitempty,phone"`
	OTP      string `json:"otp" validate:"omitempty,len=6,numeric"`
	Rating   int    `json:"rating" validate:"omitempty,gte=1,lte=5"`
	NoTag    string `validate:"required"`
}

func TestValidate_OK(t *testing.T) {
	errs, err := Validate(sample{
		Title: "Leak", Email: "a@b.com", Category: "water", Priority: "high",
		Status: "in-progress", Phone: "+919876543210", OTP: "012345", Rating: 5, NoTag: "x",
	})
	require.NoError(t, err)
	assert.Nil(t, errs)
}

func TestValidate_MessagesKeyedByJSONName(t *testing.T) {
	errs, err := Validate(sample{
		Title: "ab", Email: "nope", Category: "health", Priority: "urgent",
		Status: "done", Phone: "9876543210", OTP: "12ab", Rating: 9,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Must be at least 3 characters"}, errs["title"])
	assert.Equal(t, []string{"Invalid email format"}, errs["email"])
	assert.Contains(t, errs["category"][0], "Unknown category")
	assert.Contains(t, errs["priority"][0], "Unknown priority")
	assert.Equal(t, []string{"Unknown status"}, errs["status"])
	assert.Contains(t, errs["phone"][0], "+91")
	assert.Equal(t, []string{"Must be exactly 6 characters"}, errs["otp"])
	assert.Equal(t, []string{"Must be less than or equal to 5"}, errs["rating"])
	assert.Equal(t, []string{"This field is required"}, errs["NoTag"])
}
