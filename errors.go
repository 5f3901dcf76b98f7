/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package robo32

import (
	"errors"

	"github.com/neoproj/robo32/database"
)

// Job-level failures.
var (
	ErrConnectionUnavailable = errors.New("primary store connection unavailable")
	ErrJobAlreadyActive      = database.ErrJobAlreadyActive
)

// Tenant context failures. Any of them aborts the statement sequence that needed the context.
var (
	ErrContextUnavailable  = errors.New("tenant is not configured in the primary store")
	ErrContextSwitchFailed = errors.New("could not switch session to the operating tenant")
	ErrContextMismatch     = errors.New("session tenant does not match the operating tenant")
)

// Per-row failures raised while cloning.
var (
	ErrInvalidClassification    = errors.New("invalid classification")
	ErrPredecessorNotFound      = errors.New("predecessor not found")
	ErrIdentityAllocationFailed = errors.New("could not allocate a new identity")
	ErrNoCloneableColumns       = errors.New("no cloneable columns")
	ErrTableNotFound            = errors.New("table not found or not accessible")
	ErrAccessDenied             = errors.New("access denied")
	ErrDuplicateHistorical      = errors.New("predecessor already cloned by an earlier job")
)
