package metatool

import (
	"goblin/internal/gwerr"
	"goblin/internal/registry"
	"goblin/internal/search"
)

const suggestionLimit = 5

func toolNotFoundWithSuggestions(reg *registry.Registry, namespacedID string) error {
	tools := reg.AllTools()
	candidates := make([]search.Candidate, 0, len(tools))
	for _, t := range tools {
		candidates = append(candidates, search.Candidate{ID: t.NamespacedID, Name: t.Name, Description: t.Description})
	}
	return gwerr.ToolNotFound(namespacedID, search.Suggest(namespacedID, candidates, suggestionLimit))
}

func promptNotFoundWithSuggestions(reg *registry.Registry, namespacedID string) error {
	prompts := reg.AllPrompts()
	candidates := make([]search.Candidate, 0, len(prompts))
	for _, p := range prompts {
		candidates = append(candidates, search.Candidate{ID: p.NamespacedID, Name: p.Name, Description: p.Description})
	}
	return gwerr.PromptNotFound(namespacedID, search.Suggest(namespacedID, candidates, suggestionLimit))
}

func resourceNotFoundWithSuggestions(reg *registry.Registry, namespacedURI string) error {
	resources := reg.AllResources()
	candidates := make([]search.Candidate, 0, len(resources))
	for _, r := range resources {
		candidates = append(candidates, search.Candidate{ID: r.NamespacedURI, Name: r.Name, Description: r.NamespacedURI})
	}
	return gwerr.ResourceNotFound(namespacedURI, search.Suggest(namespacedURI, candidates, suggestionLimit))
}
