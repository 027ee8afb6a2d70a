package util

import "errors"

var (
	ErrEmailRegistered     = errors.New("该邮箱已被注册")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrChallengeNotFound   = errors.New("challenge not found")
	ErrNoTestCases         = errors.New("no test cases found")
	ErrSubmissionNotFound  = errors.New("submission not found")
	ErrNoSubmissions       = errors.New("no submissions to poll")
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrTodoExists          = errors.New("challenge already in todo list")
	ErrPermissionDenied    = errors.New("permission denied")
)
