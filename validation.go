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
	"context"
	"fmt"

	"github.com/neoproj/robo32/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

// ValidateClassification checks that a classification triple exists in the primary store. It
// uses its own short-lived session, so it can run while a job holds another one, and it never
// writes to either store.
func (r *Robo32) ValidateClassification(ctx context.Context, cls model.Classification) (bool, error) {
	ctx, span := otel.Tracer("robo32.validation").Start(ctx, "ValidateClassification")
	defer span.End()

	owner, err := sanitizeIdentifier(r.config.PrimaryStore.Owner)
	if err != nil {
		return false, err
	}

	session, err := r.pool.Acquire(ctx)
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("%w: %v", ErrConnectionUnavailable, err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logrus.Debugf("closing validation session: %v", err)
		}
	}()

	return classificationExists(ctx, session, owner, cls)
}
