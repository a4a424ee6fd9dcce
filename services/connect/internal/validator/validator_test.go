package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruet-connect/connect/services/connect/internal/apperr"
	"github.com/ruet-connect/connect/services/connect/pkg/models"
)

type signup struct {
	StudentID string `json:"student_id" validate:"ruetid"`
}

func TestStruct_ItemDraft(t *testing.T) {
	v := New()

	tests := []struct {
		name    string
		draft   models.ItemDraft
		wantMsg string
	}{
		{
			name: "valid",
			draft: models.ItemDraft{
				Title:       "Casio fx-991",
				Description: "Calculator left in ECE building room 204",
				Category:    models.CategoryFound,
			},
		},
		{
			name: "short title",
			draft: models.ItemDraft{
				Title:       "Pen",
				Description: "Blue ballpoint pen near the library",
				Category:    models.CategoryLost,
			},
			wantMsg: "title must be at least 5 characters",
		},
		{
			name: "short description",
			draft: models.ItemDraft{
				Title:       "Drawing board",
				Description: "A3 board",
				Category:    models.CategoryLend,
			},
			wantMsg: "description must be at least 10 characters",
		},
		{
			name: "unknown category",
			draft: models.ItemDraft{
				Title:       "Old textbooks",
				Description: "Second year EEE textbooks, good condition",
				Category:    "Sell",
			},
			wantMsg: "category must be one of",
		},
		{
			name: "bad image url",
			draft: models.ItemDraft{
				Title:       "Old textbooks",
				Description: "Second year EEE textbooks, good condition",
				Category:    models.CategoryDonate,
				ImageURL:    "not a url",
			},
			wantMsg: "image_url must be a valid URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.draft)
			if tt.wantMsg == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, apperr.ErrValidation)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestStruct_StudentID(t *testing.T) {
	v := New()

	require.NoError(t, v.Struct(signup{StudentID: "2103141"}))

	err := v.Struct(signup{StudentID: "2114141"})
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, err.Error(), "invalid department")
}
