package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaValidate(t *testing.T) {
	valid := New(
		Field{Name: "id", Type: TypeLong},
		Field{Name: "name", Type: TypeString, Nullable: true},
	)
	require.NoError(t, valid.Validate())

	require.Error(t, New().Validate())
	require.Error(t, New(
		Field{Name: "id", Type: TypeLong},
		Field{Name: "id", Type: TypeString},
	).Validate())
	require.Error(t, New(Field{Name: "x", Type: Type("decimal")}).Validate())
}

func TestValidateBatchNormalizesValues(t *testing.T) {
	sch := New(
		Field{Name: "id", Type: TypeLong},
		Field{Name: "amount", Type: TypeDouble},
		Field{Name: "name", Type: TypeString, Nullable: true},
	)

	batch := &Batch{Rows: []Row{
		{"id": 7, "amount": 12, "name": []byte("Ada")},
	}}
	require.NoError(t, sch.ValidateBatch(batch))

	row := batch.Rows[0]
	assert.Equal(t, int64(7), row["id"])
	assert.Equal(t, float64(12), row["amount"])
	assert.Equal(t, "Ada", row["name"])
}

func TestValidateBatchRejections(t *testing.T) {
	sch := New(
		Field{Name: "id", Type: TypeLong},
		Field{Name: "name", Type: TypeString, Nullable: true},
	)

	t.Run("missing required column", func(t *testing.T) {
		err := sch.ValidateBatch(&Batch{Rows: []Row{{"name": "x"}}})
		require.Error(t, err)
	})

	t.Run("unknown column", func(t *testing.T) {
		err := sch.ValidateBatch(&Batch{Rows: []Row{{"id": 1, "extra": true}}})
		require.Error(t, err)
	})

	t.Run("wrong type", func(t *testing.T) {
		err := sch.ValidateBatch(&Batch{Rows: []Row{{"id": "not a number"}}})
		require.Error(t, err)
	})

	t.Run("different batch schema", func(t *testing.T) {
		other := New(Field{Name: "id", Type: TypeString})
		err := sch.ValidateBatch(&Batch{Schema: other, Rows: []Row{{"id": 1}}})
		require.Error(t, err)
	})

	t.Run("nullable null passes", func(t *testing.T) {
		batch := &Batch{Rows: []Row{{"id": 1}}}
		require.NoError(t, sch.ValidateBatch(batch))
		assert.Nil(t, batch.Rows[0]["name"])
	})
}
