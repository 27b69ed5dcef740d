package catalog

import (
	"testing"

	"pintfoam/testutil"
)

func TestOnlyCatalogPackageImportsInfra(t *testing.T) {
	testutil.AssertOnlyFacadeImports(t, "pintfoam/internal/catalog", "pintfoam/internal/infra/catalog")
}
