package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateIngest_ValidMessage(t *testing.T) {
	result := ValidateIngest("1,2024-01-05,14:30,GPSERR,7,28,450", "")
	assert.True(t, result.IsValid)
	assert.Empty(t, result.Reason)
}

func TestValidateIngest_Notification(t *testing.T) {
	result := ValidateIngest("New SMS received at index 2", KindNotification)
	assert.True(t, result.IsValid)
}

func TestValidateIngest_EmptyContent(t *testing.T) {
	for _, content := range []string{"", "   ", "\n\t"} {
		result := ValidateIngest(content, KindMessage)
		assert.False(t, result.IsValid)
		assert.Equal(t, "no message content provided", result.Reason)
	}
}

func TestValidateIngest_UnknownKind(t *testing.T) {
	result := ValidateIngest("hello", "status")
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Reason, `"status"`)
}

func TestNormalizeKind(t *testing.T) {
	assert.Equal(t, KindMessage, NormalizeKind(""))
	assert.Equal(t, KindNotification, NormalizeKind(KindNotification))
}

func TestValidateBuoyID(t *testing.T) {
	neg, zero, largest, tooLarge := -1, 0, MaxBuoyID, MaxBuoyID+1
	assert.True(t, ValidateBuoyID(nil).IsValid)
	assert.True(t, ValidateBuoyID(&zero).IsValid)
	assert.True(t, ValidateBuoyID(&largest).IsValid)
	assert.False(t, ValidateBuoyID(&neg).IsValid)

	result := ValidateBuoyID(&tooLarge)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Reason, "2147483647")
}

func TestValidateIngest_UnstorableContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		reason  string
	}{
		{"nul byte", "1,2024-01-05\x00,14:30", "NUL"},
		{"invalid utf-8", "1,2024-01-05,\xff\xfe14:30", "UTF-8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateIngest(tt.content, KindMessage)
			assert.False(t, result.IsValid)
			assert.Contains(t, result.Reason, tt.reason)
		})
	}
}
