package openai

import "github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/domain"

const defaultContextWindow = 128000

// DefaultModels returns the models offered by the OpenAI provider, default first.
func DefaultModels() []domain.Model {
	return []domain.Model{
		{ID: "gpt-4o-mini", DisplayName: "GPT-4o mini", ContextWindow: defaultContextWindow},
		{ID: "gpt-4o", DisplayName: "GPT-4o", ContextWindow: defaultContextWindow},
		{ID: "gpt-4-turbo", DisplayName: "GPT-4 Turbo", ContextWindow: defaultContextWindow},
	}
}
