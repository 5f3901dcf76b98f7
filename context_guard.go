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
	"database/sql"
	"fmt"
	"strings"

	oraconn "github.com/neoproj/robo32/internal/ora-conn"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

// ContextSetter is one known way of switching a session to a tenant. The
// statement binds the tenant as :p_emp.
type ContextSetter struct {
	Name      string
	Statement string
}

// DefaultContextSetters is tried in order; installations expose the setter
// under different packages and synonyms.
var DefaultContextSetters = []ContextSetter{
	{Name: "DBAMV.PKG_MV_CONFIG", Statement: "BEGIN dbamv.pkg_mv_config.set_empresa(:p_emp); END;"},
	{Name: "DBAMV.MS_SET_CONFIG", Statement: "BEGIN dbamv.ms_set_config.set_empresa(:p_emp); END;"},
	{Name: "PKG_MV_CONFIG", Statement: "BEGIN pkg_mv_config.set_empresa(:p_emp); END;"},
	{Name: "MS_SET_CONFIG", Statement: "BEGIN ms_set_config.set_empresa(:p_emp); END;"},
}

const (
	sqlTenantConfigured  = `SELECT COUNT(*) AS TOTAL FROM dbamv.configest WHERE cd_multi_empresa = :p_emp`
	sqlInitializeContext = `BEGIN dbamv.pkt_configest.inicializa; END;`
	sqlCurrentTenant     = `SELECT dbamv.pkg_mv2000.le_empresa AS EMP FROM dual`
)

// ContextGuard makes sure a session acts on behalf of the operating tenant
// before any mutation. It never commits.
type ContextGuard struct {
	TenantID int64
	Skip     bool
	Setters  []ContextSetter
}

func NewContextGuard(tenantID int64, skip bool) *ContextGuard {
	return &ContextGuard{TenantID: tenantID, Skip: skip, Setters: DefaultContextSetters}
}

// EnsureContext verifies the tenant exists, switches the session to it,
// runs the mandatory initialization and reads the tenant back.
func (g *ContextGuard) EnsureContext(ctx context.Context, s oraconn.Session) error {
	ctx, span := otel.Tracer("robo32.context").Start(ctx, "EnsureContext")
	defer span.End()

	if g.Skip {
		logrus.Warn("tenant context setup skipped by configuration")
		return nil
	}

	var total int64
	if _, err := oraconn.QueryRow(ctx, s, []interface{}{&total}, sqlTenantConfigured, sql.Named("p_emp", g.TenantID)); err != nil {
		span.RecordError(err)
		return fmt.Errorf("checking tenant %d configuration: %w", g.TenantID, err)
	}
	if total < 1 {
		return fmt.Errorf("%w: tenant %d has no row in configest", ErrContextUnavailable, g.TenantID)
	}

	if err := g.switchTenant(ctx, s); err != nil {
		span.RecordError(err)
		return err
	}

	if _, err := s.ExecContext(ctx, sqlInitializeContext); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: initializing tenant context: %v", ErrContextSwitchFailed, err)
	}

	var current sql.NullInt64
	if _, err := oraconn.QueryRow(ctx, s, []interface{}{&current}, sqlCurrentTenant); err != nil {
		span.RecordError(err)
		return fmt.Errorf("reading session tenant: %w", err)
	}
	if !current.Valid || current.Int64 != g.TenantID {
		got := "NULL"
		if current.Valid {
			got = fmt.Sprint(current.Int64)
		}
		return fmt.Errorf("%w: expected %d, session reports %s", ErrContextMismatch, g.TenantID, got)
	}

	return nil
}

func (g *ContextGuard) switchTenant(ctx context.Context, s oraconn.Session) error {
	setters := g.Setters
	if len(setters) == 0 {
		setters = DefaultContextSetters
	}

	attempts := make([]string, 0, len(setters))
	for _, setter := range setters {
		_, err := s.ExecContext(ctx, setter.Statement, sql.Named("p_emp", g.TenantID))
		if err == nil {
			logrus.Debugf("tenant %d set through %s", g.TenantID, setter.Name)
			return nil
		}
		attempts = append(attempts, fmt.Sprintf("%s: %v", setter.Name, err))
	}

	return fmt.Errorf("%w: set_empresa(%d) attempts:\n- %s", ErrContextSwitchFailed, g.TenantID, strings.Join(attempts, "\n- "))
}
