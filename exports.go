package bursar

import (
	"github.com/xraph/bursar/id"
	"github.com/xraph/bursar/types"
)

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

// ID is the primary identifier type for all Bursar entities.
type ID = id.ID

// Re-export Money constructors
var (
	USD  = types.USD
	EUR  = types.EUR
	Zero = types.Zero
	Sum  = types.Sum
)
