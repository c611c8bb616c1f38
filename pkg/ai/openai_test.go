package ai

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseGeneratedQuestionsDropsInvalidEntries(t *testing.T) {
	content := `{"questions":[
		{"question":"2 + 2 = ?","options":{"A":"3","B":"4","C":"5","D":"6"},"correct_answer":"b"},
		{"question":"","options":{"A":"x"},"correct_answer":"A"},
		{"question":"Missing key","options":{"A":"x","B":"y"},"correct_answer":"D"}
	]}`

	questions, err := ParseGeneratedQuestions(content)
	require.NoError(t, err)
	require.Len(t, questions, 1)
	require.Equal(t, "B", questions[0].CorrectAnswer)
	require.Equal(t, "4", questions[0].Options["B"])
}

func TestParseGeneratedQuestionsRejectsEmptyOutput(t *testing.T) {
	_, err := ParseGeneratedQuestions(`{"questions":[]}`)
	require.Error(t, err)

	_, err = ParseGeneratedQuestions(`not json`)
	require.Error(t, err)
}

func TestBuildUserPartsEmbedsImages(t *testing.T) {
	parts := buildUserParts(GenerationInput{
		Text:   "Photosynthesis",
		Images: []SourceImage{{MimeType: "image/png", Data: []byte{0x89, 0x50}}},
		Count:  3,
	})

	require.Len(t, parts, 2)
	require.Contains(t, parts[0].Text, "Write 3 questions.")
	require.Contains(t, parts[0].Text, "Photosynthesis")
	require.NotNil(t, parts[1].ImageURL)
	require.Contains(t, parts[1].ImageURL.URL, "data:image/png;base64,")
}
