package app

import (
	"fmt"

	"moodquiz-service/internal/domain"
)

const questionsPerQuiz = 5

const questionFormat = `Q1. [Question text]
A) [Option A]
B) [Option B]
C) [Option C]
D) [Option D]
Answer: [Correct option letter]`

var difficultyInstructions = map[domain.Difficulty]string{
	domain.DifficultyEasy: "Generate %d basic multiple-choice questions that test fundamental understanding. " +
		"Focus on key terms, definitions and basic concepts.",
	domain.DifficultyMedium: "Generate %d intermediate multiple-choice questions that require both understanding and application. " +
		"Include questions about relationships between concepts and practical applications.",
	domain.DifficultyHard: "Generate %d challenging multiple-choice questions that require deep analysis. " +
		"Include questions that combine multiple concepts and require critical thinking.",
}

func detailedPrompt(d domain.Difficulty, text string) string {
	instruction, ok := difficultyInstructions[d]
	if !ok {
		instruction = difficultyInstructions[domain.DifficultyMedium]
	}
	return fmt.Sprintf(`Based on the following text, %s

Rules for question generation:
1. Each question must have exactly 4 options (A, B, C, D)
2. One and only one option should be correct
3. All options should be plausible but clearly distinguishable
4. Questions should be relevant to the text content
5. Separate questions with one blank line

Format each question exactly as follows:
%s

Text to analyze:
%s`, fmt.Sprintf(instruction, questionsPerQuiz), questionFormat, text)
}

func simplifiedPrompt(text string) string {
	return fmt.Sprintf(`Generate %d multiple-choice questions about this text. Each question must have exactly 4 options (A, B, C, D) and one correct answer.

Format:
%s

Text: %s`, questionsPerQuiz, questionFormat, text)
}
