// Package guide builds the prompts sent to AI providers for study material
// generation and exam grading.
package guide

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const studyGuideSystem = `You are a study assistant for teachers and students.
You turn course material into clear, well-structured study guides.
Work only from the provided material. Do not invent facts.
Answer in the same language as the material.`

const examGradingSystem = `You are an exam grading assistant for teachers.
You grade student answers against the provided answer key or source material.
Be fair and consistent. Explain every point deduction briefly.`

// StudyGuidePrompt builds the user prompt for study guide generation from
// extracted document text. Pass empty text when the request attaches page
// images instead.
func StudyGuidePrompt(text, topic string) string {
	var sb strings.Builder
	sb.WriteString("Create a study guide from the following course material.\n")
	sb.WriteString("Include: key concepts with short definitions, a summary per section, and 5-10 practice questions with answers.\n")
	if topic != "" {
		fmt.Fprintf(&sb, "Focus on the topic: %s\n", topic)
	}
	if text != "" {
		sb.WriteString("\nCOURSE MATERIAL:\n")
		sb.WriteString(text)
	} else {
		sb.WriteString("\nThe course material is attached as page images.")
	}
	return sb.String()
}

// ExamGradingPrompt builds the user prompt for grading a student submission.
func ExamGradingPrompt(submission, answerKey string) string {
	var sb strings.Builder
	sb.WriteString("Grade the following student submission.\n")
	sb.WriteString("For each answer give: points awarded, maximum points, and a one-line justification.\n")
	sb.WriteString("End with a total score and a letter grade.\n")
	if answerKey != "" {
		sb.WriteString("\nANSWER KEY:\n")
		sb.WriteString(answerKey)
	}
	if submission != "" {
		sb.WriteString("\nSTUDENT SUBMISSION:\n")
		sb.WriteString(submission)
	} else {
		sb.WriteString("\nThe student submission is attached as page images.")
	}
	return sb.String()
}

// SystemPrompt returns the system prompt for a task kind.
func SystemPrompt(task string) string {
	if task == "grade_exam" {
		return examGradingSystem
	}
	return studyGuideSystem
}

// EstimateTokens approximates the token count of a prompt. Four characters
// per token is close enough for budget checks across providers.
func EstimateTokens(s string) int {
	return utf8.RuneCountInString(s) / 4
}
