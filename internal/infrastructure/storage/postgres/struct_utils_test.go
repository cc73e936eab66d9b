package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

type outboxRowProbe struct {
	ID      id.ID  `db:"id"`
	Payload []byte `db:"payload"`
	Ignored string `db:"-"`
	Scratch string
}

func TestExtractDBColumns_FlattensEmbeddedTriple(t *testing.T) {
	cols := ExtractDBColumns[entity.StockRecord]()

	assert.Equal(t, []string{"product_id", "variant_id", "warehouse_id"}, cols[:3])
	assert.Contains(t, cols, "on_hand")
	assert.Contains(t, cols, "reserved")
	assert.Contains(t, cols, "average_cost")
	assert.Contains(t, cols, "version")
}

func TestExtractDBColumns_SkipsUntaggedFields(t *testing.T) {
	assert.Equal(t, []string{"id", "payload"}, ExtractDBColumns[outboxRowProbe]())
}

func TestStructToMap_StockRecord(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	tr := entity.NewTriple(id.New(), id.Nil(), id.New())
	rec := entity.StockRecord{
		Triple:      tr,
		OnHand:      10,
		Reserved:    4,
		AverageCost: types.MustMoney("2.5"),
		UpdatedAt:   now,
		Version:     3,
	}

	m := StructToMap(rec)

	assert.Equal(t, tr.ProductID, m["product_id"])
	assert.Equal(t, tr.WarehouseID, m["warehouse_id"])
	assert.Equal(t, types.Quantity(10), m["on_hand"])
	assert.Equal(t, types.Quantity(4), m["reserved"])
	assert.Equal(t, int64(3), m["version"])
	assert.Equal(t, now, m["updated_at"])
	assert.Len(t, m, len(ExtractDBColumns[entity.StockRecord]()))
}

func TestStructToMap_NonStruct(t *testing.T) {
	assert.Nil(t, StructToMap(42))
}
