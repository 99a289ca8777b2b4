package handlers

import "agentic-edit/internal/tools"

// Default returns the built-in tool handlers, one per tool name.
func Default() []tools.Handler {
	return []tools.Handler{
		ExecuteCommandHandler{},
		ReadFileHandler{},
		WriteToFileHandler{},
		ReplaceInFileHandler{},
		SearchFilesHandler{},
		ListFilesHandler{},
		ListCodeDefinitionsHandler{},
		AskFollowupHandler{},
		AttemptCompletionHandler{},
		PlanModeRespondHandler{},
		UseMCPToolHandler{},
		UseRAGToolHandler{},
		TodoReadHandler{},
		TodoWriteHandler{},
		ACModReadHandler{},
		ACModWriteHandler{},
	}
}

// NewRegistry builds the registry of all built-in handlers.
func NewRegistry() (*tools.Registry, error) {
	return tools.NewRegistry(Default()...)
}
