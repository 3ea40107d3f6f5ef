package prompt

import (
	"strconv"
	"strings"

	"recipeflow/internal/recipe"
)

const ChatInstruction = `You are a friendly cooking assistant helping someone cook the recipe below.
Answer the user's question using the recipe context. Keep answers short and practical (a few sentences).
If the question is unrelated to cooking or the recipe, politely steer back to the recipe.
Do not use markdown headings.`

// Chat renders the Q&A prompt. An out-of-range current step index is ignored.
func Chat(c recipe.ChatContext) string {
	var b strings.Builder
	b.WriteString(ChatInstruction)
	b.WriteString("\n\nRecipe: ")
	b.WriteString(strings.TrimSpace(c.Title))

	if desc := strings.TrimSpace(c.Description); desc != "" {
		b.WriteString("\nDescription: ")
		b.WriteString(desc)
	}

	b.WriteString("\n\nIngredients:\n")
	for _, ing := range c.Ingredients {
		b.WriteString("- ")
		b.WriteString(IngredientLine(ing))
		b.WriteByte('\n')
	}

	b.WriteString("\nSteps:\n")
	for i, step := range c.Steps {
		b.WriteString(strconv.Itoa(stepNumber(step, i)))
		b.WriteString(". ")
		b.WriteString(strings.TrimSpace(step.Text))
		b.WriteByte('\n')
	}

	if step, i, ok := c.CurrentStep(); ok {
		b.WriteString("\nThe user is currently on step ")
		b.WriteString(strconv.Itoa(stepNumber(step, i)))
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(step.Text))
		b.WriteByte('\n')
	}

	b.WriteString("\nUser question: ")
	b.WriteString(strings.TrimSpace(c.UserMessage))
	return b.String()
}

// IngredientLine renders "qty unit item", skipping empty parts.
func IngredientLine(ing recipe.Ingredient) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{ing.Qty, ing.Unit, ing.Item} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

func stepNumber(step recipe.ChatStep, pos int) int {
	if step.Index != nil {
		return *step.Index
	}
	return pos + 1
}
