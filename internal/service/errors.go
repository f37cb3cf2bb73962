package service

import (
	"github.com/Harshitk-cp/speclens/internal/domain"
)

var (
	ErrProjectNotFound   = domain.NewError(domain.KindNotFound, "project not found", "check the project id or create the project first")
	ErrSessionNotFound   = domain.NewError(domain.KindNotFound, "session not found", "start a new session for the project")
	ErrQuestionNotFound  = domain.NewError(domain.KindNotFound, "question not found", "request the next question with generate_question")
	ErrConflictNotFound  = domain.NewError(domain.KindNotFound, "conflict not found", "list the project's conflicts to get a valid id")
	ErrStatementNotFound = domain.NewError(domain.KindNotFound, "statement not found", "list the project's statements to get a valid id")
	ErrFormatNotFound    = domain.NewError(domain.KindNotFound, "export format not found", "list the domain's export formats")

	ErrSessionMismatch = domain.NewError(domain.KindValidation, "session does not belong to project", "start a session for this project")
	ErrEmptyAnswer     = domain.NewError(domain.KindValidation, "answer_text is required", "send a non-empty answer")
	ErrEmptyName       = domain.NewError(domain.KindValidation, "name is required", "give the project a name")
)
