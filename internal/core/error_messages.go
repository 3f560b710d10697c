// Package core provides the business logic for reseller spreadsheet ingestion.
//
// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// When users encounter errors, they can quote the error code to support staff
// for faster diagnosis.
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: File exceeds the maximum upload size
//	          Action: Remove unused sheets or columns and try again
//	          Patterns: "file too large", "request body too large"
//
//	FILE002 - Unsupported format: Only .xlsx, .xls and .csv are accepted
//	          Action: Save the spreadsheet as .xlsx or .csv
//	          Patterns: "unsupported format"
//
//	FILE003 - Empty file: The file has no data rows
//	          Action: Check that the first sheet has a header row and data
//	          Patterns: "empty file"
//
//	FILE004 - Unreadable file: The file could not be decoded
//	          Action: Re-export the file from your spreadsheet program
//	          Patterns: "decode failure"
//
//	FILE005 - No file: No file was selected
//	          Action: Please select a spreadsheet to upload
//	          Patterns: "no file provided"
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Missing columns: Required columns were not found
//	         Action: Add the Nome, Codigo Estrutura and Situacao columns
//	         Patterns: "missing required columns"
//
// # Upload Errors (UPL001-UPL099)
//
//	UPL001 - System busy: Another file is still being processed
//	         Action: Wait for the current upload to finish
//	         Patterns: "too many uploads"
//
//	UPL002 - Request cancelled: Request was cancelled
//	         Patterns: "context canceled"
//
//	UPL003 - Request timeout: Request timed out
//	         Patterns: "context deadline exceeded"
//
// # Data Errors (DATA001-DATA099)
//
//	DATA001 - No data: No spreadsheet has been loaded yet
//	          Patterns: "no data loaded"
//
//	DATA002 - Unknown history entry: The ingestion record does not exist
//	          Patterns: "history entry not found"
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Rate limited: Too many requests
//	          Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches. Support staff should check the
// application logs for the original technical error.
//
// # Pattern Matching
//
// An *IngestError is mapped by its kind. Any other error is matched
// case-insensitively with strings.Contains and the first matching pattern wins.
package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoData is returned by queries made before any file was loaded.
var ErrNoData = errors.New("no data loaded")

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// More specific patterns come before general ones.
var errorPatterns = []errorPattern{
	// =========================================================================
	// File Errors (FILE001-FILE005)
	// =========================================================================
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Remove unused sheets or columns and try again",
			Code:    "FILE001",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Remove unused sheets or columns and try again",
			Code:    "FILE001",
		},
	},
	{
		pattern: "unsupported format",
		msg: UserMessage{
			Message: "Unsupported file format",
			Action:  "Save the spreadsheet as .xlsx or .csv",
			Code:    "FILE002",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The file has no data rows",
			Action:  "Check that the first sheet has a header row and data",
			Code:    "FILE003",
		},
	},
	{
		pattern: "decode failure",
		msg: UserMessage{
			Message: "The file could not be read",
			Action:  "Re-export the file from your spreadsheet program",
			Code:    "FILE004",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a spreadsheet to upload",
			Code:    "FILE005",
		},
	},

	// =========================================================================
	// Validation Errors (VAL001)
	// =========================================================================
	{
		pattern: "missing required columns",
		msg: UserMessage{
			Message: "Required columns were not found",
			Action:  "Add the Nome, Codigo Estrutura and Situacao columns",
			Code:    "VAL001",
		},
	},

	// =========================================================================
	// Upload Errors (UPL001-UPL003)
	// =========================================================================
	{
		pattern: "too many uploads",
		msg: UserMessage{
			Message: "Another file is still being processed",
			Action:  "Wait for the current upload to finish",
			Code:    "UPL001",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "UPL002",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or check your connection",
			Code:    "UPL003",
		},
	},

	// =========================================================================
	// Data Errors (DATA001)
	// =========================================================================
	{
		pattern: "no data loaded",
		msg: UserMessage{
			Message: "No spreadsheet has been loaded yet",
			Action:  "Upload a reseller spreadsheet first",
			Code:    "DATA001",
		},
	},
	{
		pattern: "history entry not found",
		msg: UserMessage{
			Message: "Upload history entry not found",
			Action:  "It may have been rotated out of the history",
			Code:    "DATA002",
		},
	},

	// =========================================================================
	// Rate Limiting (RATE001)
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// An *IngestError is mapped through its kind so its own message can stay
// verbatim for the user.
//
// Example:
//
//	msg := MapError(ErrIngestInProgress)
//	// msg.Code == "UPL001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var ie *IngestError
	if errors.As(err, &ie) && ie.kind != nil {
		err = ie.kind
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError wraps a technical error with a user-friendly message.
// The original error is preserved for logging.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps a technical error to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
