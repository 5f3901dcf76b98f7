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

	oraconn "github.com/neoproj/robo32/internal/ora-conn"
	"github.com/neoproj/robo32/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Columns set explicitly by the clone statements and therefore never copied.
var (
	entityExcludedColumns = []string{
		"CD_PRODUTO", "CD_ESPECIE", "CD_CLASSE", "CD_SUB_CLA", "DT_CADASTRO",
		"CD_USUARIO_INC", "DT_INC_USUARIO", "CD_USUARIO_ALT", "DT_ALT_USUARIO",
	}
	unitExcludedColumns    = []string{"CD_UNI_PRO", "CD_PRODUTO", "CD_CODIGO_DE_BARRAS"}
	bindingExcludedColumns = []string{"CD_PRODUTO"}
)

// entityCloner is what the job loop needs from the clone engine.
type entityCloner interface {
	CloneEntity(ctx context.Context, s oraconn.Session, predecessorID int64, cls model.Classification) (int64, error)
}

// CloneEngine copies an entity with its units and tenant bindings under a new
// classification and deactivates the predecessor. All work stays in the
// session's open transaction; committing is the caller's decision.
type CloneEngine struct {
	guard               *ContextGuard
	columns             *columnCache
	owner               string
	operatingTenantOnly bool
}

// NewCloneEngine returns an engine with an empty metadata cache. Create one per job run.
func NewCloneEngine(guard *ContextGuard, owner string, operatingTenantOnly bool) *CloneEngine {
	return &CloneEngine{
		guard:               guard,
		columns:             newColumnCache(owner),
		owner:               owner,
		operatingTenantOnly: operatingTenantOnly,
	}
}

func (e *CloneEngine) table(name string) string {
	return fmt.Sprintf("%s.%s", e.owner, name)
}

// CloneEntity clones predecessorID under cls and returns the new identity.
func (e *CloneEngine) CloneEntity(ctx context.Context, s oraconn.Session, predecessorID int64, cls model.Classification) (int64, error) {
	ctx, span := otel.Tracer("robo32.clone").Start(ctx, "CloneEntity")
	defer span.End()
	span.SetAttributes(attribute.Int64("robo32.predecessor_id", predecessorID))

	newID, err := e.clone(ctx, s, predecessorID, cls)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	span.SetAttributes(attribute.Int64("robo32.new_id", newID))
	return newID, nil
}

func (e *CloneEngine) clone(ctx context.Context, s oraconn.Session, predecessorID int64, cls model.Classification) (int64, error) {
	if _, err := sanitizeIdentifier(e.owner); err != nil {
		return 0, err
	}

	if err := e.guard.EnsureContext(ctx, s); err != nil {
		return 0, err
	}

	if err := e.validateClassification(ctx, s, cls); err != nil {
		return 0, err
	}

	newID, err := e.nextEntityID(ctx, s)
	if err != nil {
		return 0, err
	}

	if err := e.insertEntity(ctx, s, predecessorID, newID, cls); err != nil {
		return 0, err
	}
	if err := e.insertUnits(ctx, s, predecessorID, newID); err != nil {
		return 0, err
	}
	if err := e.insertBindings(ctx, s, predecessorID, newID); err != nil {
		return 0, err
	}

	// deactivation fires tenant-aware triggers
	if err := e.guard.EnsureContext(ctx, s); err != nil {
		return 0, err
	}
	if err := e.deactivatePredecessor(ctx, s, predecessorID); err != nil {
		return 0, err
	}

	logrus.Debugf("predecessor %d cloned into %d", predecessorID, newID)
	return newID, nil
}

func (e *CloneEngine) validateClassification(ctx context.Context, s oraconn.Session, cls model.Classification) error {
	ok, err := classificationExists(ctx, s, e.owner, cls)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: species=%d, class=%d, subclass=%d", ErrInvalidClassification, cls.Species, cls.Class, cls.SubClass)
	}
	return nil
}

func classificationExists(ctx context.Context, s oraconn.Session, owner string, cls model.Classification) (bool, error) {
	query := fmt.Sprintf(`SELECT 1 AS OK
  FROM %s.sub_clas
 WHERE cd_especie = :p_especie
   AND cd_classe = :p_classe
   AND cd_sub_cla = :p_sub_cla`, owner)

	var ok int64
	return oraconn.QueryRow(ctx, s, []interface{}{&ok}, query,
		sql.Named("p_especie", cls.Species),
		sql.Named("p_classe", cls.Class),
		sql.Named("p_sub_cla", cls.SubClass),
	)
}

func (e *CloneEngine) nextEntityID(ctx context.Context, s oraconn.Session) (int64, error) {
	var next sql.NullInt64
	query := fmt.Sprintf(`SELECT %s.seq_produto.NEXTVAL AS NEXTID FROM dual`, e.owner)
	found, err := oraconn.QueryRow(ctx, s, []interface{}{&next}, query)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIdentityAllocationFailed, err)
	}
	if !found || !next.Valid || next.Int64 <= 0 {
		return 0, ErrIdentityAllocationFailed
	}
	return next.Int64, nil
}

func (e *CloneEngine) insertEntity(ctx context.Context, s oraconn.Session, predecessorID, newID int64, cls model.Classification) error {
	cols, err := e.columns.cloneColumnList(ctx, s, "PRODUTO", entityExcludedColumns...)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`INSERT INTO %[1]s (CD_PRODUTO, CD_ESPECIE, CD_CLASSE, CD_SUB_CLA, DT_CADASTRO, %[2]s)
SELECT :p_novo_id, :p_especie, :p_classe, :p_sub_cla, SYSDATE, %[2]s
  FROM %[1]s
 WHERE cd_produto = :p_antecessor`, e.table("produto"), cols)

	res, err := s.ExecContext(ctx, query,
		sql.Named("p_novo_id", newID),
		sql.Named("p_especie", cls.Species),
		sql.Named("p_classe", cls.Class),
		sql.Named("p_sub_cla", cls.SubClass),
		sql.Named("p_antecessor", predecessorID),
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return fmt.Errorf("%w: %d", ErrPredecessorNotFound, predecessorID)
	}
	return nil
}

func (e *CloneEngine) insertUnits(ctx context.Context, s oraconn.Session, predecessorID, newID int64) error {
	cols, err := e.columns.cloneColumnList(ctx, s, "UNI_PRO", unitExcludedColumns...)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`INSERT INTO %[1]s (CD_UNI_PRO, CD_PRODUTO, CD_CODIGO_DE_BARRAS, %[2]s)
SELECT %[3]s.seq_uni_pro.NEXTVAL, :p_novo_id, NULL, %[2]s
  FROM %[1]s
 WHERE cd_produto = :p_antecessor`, e.table("uni_pro"), cols, e.owner)

	_, err = s.ExecContext(ctx, query, sql.Named("p_novo_id", newID), sql.Named("p_antecessor", predecessorID))
	return err
}

func (e *CloneEngine) insertBindings(ctx context.Context, s oraconn.Session, predecessorID, newID int64) error {
	cols, err := e.columns.cloneColumnList(ctx, s, "EMPRESA_PRODUTO", bindingExcludedColumns...)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`INSERT INTO %[1]s (CD_PRODUTO, %[2]s)
SELECT :p_novo_id, %[2]s
  FROM %[1]s
 WHERE cd_produto = :p_antecessor`, e.table("empresa_produto"), cols)
	args := []interface{}{sql.Named("p_novo_id", newID), sql.Named("p_antecessor", predecessorID)}

	if e.operatingTenantOnly {
		query += "\n   AND cd_multi_empresa = :p_emp"
		args = append(args, sql.Named("p_emp", e.guard.TenantID))
	}

	_, err = s.ExecContext(ctx, query, args...)
	return err
}

func (e *CloneEngine) deactivatePredecessor(ctx context.Context, s oraconn.Session, predecessorID int64) error {
	_, err := s.ExecContext(ctx, fmt.Sprintf(`UPDATE %s
   SET sn_movimentacao = 'N',
       sn_bloqueio_de_compra = 'S'
 WHERE cd_produto = :p_antecessor`, e.table("produto")), sql.Named("p_antecessor", predecessorID))
	if err != nil {
		return err
	}

	_, err = s.ExecContext(ctx, fmt.Sprintf(`UPDATE %s
   SET sn_movimentacao = 'N',
       sn_bloqueio_de_compra = 'S'
 WHERE cd_produto = :p_antecessor
   AND cd_multi_empresa = :p_emp`, e.table("empresa_produto")),
		sql.Named("p_antecessor", predecessorID), sql.Named("p_emp", e.guard.TenantID))
	return err
}
