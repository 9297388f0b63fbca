package person

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tester620/server-ancestropedia-v1/pkg/models"
)

func strptr(s string) *string { return &s }

func TestDiffUpdate_KeepsOnlyChangedFields(t *testing.T) {
	birth := time.Date(1950, 4, 12, 0, 0, 0, 0, time.UTC)
	person := &models.Person{
		ID:            "p1",
		FirstName:     "Robert",
		LastName:      "Doe",
		Gender:        models.GenderMale,
		Living:        true,
		BirthDate:     &birth,
		Occupation:    strptr("Carpenter"),
		ResidenceCity: strptr("Bangalore"),
	}

	req := models.UpdatePersonRequest{
		FirstName:     strptr("Robert"),            // unchanged
		LastName:      strptr("Smith"),             // changed
		Occupation:    strptr("Master Carpenter"),  // changed
		ResidenceCity: strptr("Bangalore"),         // unchanged
		BirthDate:     &birth,                      // unchanged
	}

	prev, next := diffUpdate(person, req)

	assert.Equal(t, map[string]any{
		"last_name":  "Doe",
		"occupation": strptr("Carpenter"),
	}, prev)
	assert.Equal(t, map[string]any{
		"last_name":  "Smith",
		"occupation": "Master Carpenter",
	}, next)
}

func TestDiffUpdate_NilCurrentValueCountsAsChange(t *testing.T) {
	person := &models.Person{ID: "p1", FirstName: "Robert", LastName: "Doe"}

	prev, next := diffUpdate(person, models.UpdatePersonRequest{
		Occupation: strptr("Farmer"),
	})

	require.Contains(t, prev, "occupation")
	assert.Nil(t, prev["occupation"])
	assert.Equal(t, "Farmer", next["occupation"])
}

func TestDiffUpdate_NoChangesYieldsEmptyDiff(t *testing.T) {
	person := &models.Person{ID: "p1", FirstName: "Robert", LastName: "Doe", Living: true}

	prev, next := diffUpdate(person, models.UpdatePersonRequest{
		FirstName: strptr("Robert"),
		Living:    func() *bool { b := true; return &b }(),
	})

	assert.Empty(t, prev)
	assert.Empty(t, next)
}

func TestDiffUpdate_ProposedValuesRoundTripIntoAnEdit(t *testing.T) {
	person := &models.Person{ID: "p1", FirstName: "Robert", LastName: "Doe"}

	_, next := diffUpdate(person, models.UpdatePersonRequest{
		LastName:   strptr("Smith"),
		Occupation: strptr("Farmer"),
	})

	data, err := json.Marshal(next)
	require.NoError(t, err)

	var update models.UpdatePersonRequest
	require.NoError(t, json.Unmarshal(data, &update))
	require.NotNil(t, update.LastName)
	assert.Equal(t, "Smith", *update.LastName)
	require.NotNil(t, update.Occupation)
	assert.Equal(t, "Farmer", *update.Occupation)
	assert.Nil(t, update.FirstName, "unproposed fields stay unset")
}
