package sqlite_test

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"testing"

	"github.com/sagarc03/filepulse"
	"github.com/sagarc03/filepulse/database/sqlite"
	"github.com/stretchr/testify/require"
)

func getRandomString(t *testing.T) string {
	t.Helper()
	n, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	require.NoError(t, err, "random string")
	return fmt.Sprintf("test%x", n.Int64())
}

// setupTestRepo creates a migrated in-memory repo with a unique table name.
func setupTestRepo(t *testing.T, codes filepulse.CodeGenerator) filepulse.ShareRegistry {
	t.Helper()

	ctx := context.Background()
	tables := filepulse.Tables{Shares: fmt.Sprintf("shares_%s", getRandomString(t))}

	db, err := sqlite.Connect(ctx, ":memory:", tables, codes)
	require.NoError(t, err, "failed to connect")
	t.Cleanup(func() { _ = db.Close() })

	err = db.Migrate(ctx)
	require.NoError(t, err, "failed to migrate")

	return db.GetRepo()
}

// sequenceCodes hands out the given codes in order and repeats the last one.
func sequenceCodes(codes ...string) filepulse.CodeGenerator {
	i := 0
	return filepulse.CodeGeneratorFunc(func() (string, error) {
		code := codes[min(i, len(codes)-1)]
		i++
		return code, nil
	})
}
