package grid

import "sync"

// DefaultName is the name of the built-in LA-BBA table.
const DefaultName = "LA-BBA"

// BlockSize is the nominal edge length of an LA-BBA block in meters.
const BlockSize = 2500.0

var laBBACorners = [][]Corner{
	{{}, {}, {}, {}, {}, {}, {}, {}, {}, {}, {}},
	{{}, {-106.399763, 35.973427}, {-106.371377, 35.973459}, {-106.343656, 35.973484}, {-106.315936, 35.973502}, {-106.288215, 35.973514}, {-106.260495, 35.973520}, {-106.232774, 35.973519}, {}, {}, {}},
	{{}, {-106.399721, 35.950894}, {-106.371342, 35.950926}, {-106.343630, 35.950951}, {-106.315917, 35.950969}, {-106.288204, 35.950981}, {-106.260492, 35.950987}, {-106.232779, 35.950986}, {}, {}, {}},
	{{}, {-106.399678, 35.928361}, {-106.371308, 35.928393}, {-106.343603, 35.928418}, {-106.315898, 35.928436}, {-106.288193, 35.928448}, {-106.260489, 35.928454}, {-106.232784, 35.928453}, {}, {}, {}},
	{{}, {-106.399636, 35.905828}, {-106.371273, 35.905860}, {-106.343577, 35.905885}, {-106.315880, 35.905903}, {-106.288183, 35.905915}, {-106.260486, 35.905921}, {-106.232789, 35.905920}, {}, {}, {}},
	{{}, {-106.399593, 35.883295}, {-106.371239, 35.883327}, {-106.343550, 35.883351}, {-106.315861, 35.883370}, {-106.288172, 35.883382}, {-106.260483, 35.883387}, {-106.232794, 35.883387}, {}, {}, {}},
	{{}, {-106.399551, 35.860761}, {-106.371205, 35.860793}, {-106.343524, 35.860818}, {-106.315842, 35.860836}, {-106.288161, 35.860848}, {-106.260480, 35.860854}, {-106.232798, 35.860853}, {}, {}, {}},
	{{-106.426517, 35.838191}, {-106.399509, 35.838228}, {-106.371170, 35.838260}, {-106.343497, 35.838285}, {-106.315824, 35.838303}, {-106.288150, 35.838315}, {-106.260477, 35.838320}, {-106.232803, 35.838320}, {-106.205130, 35.838313}, {-106.177456, 35.838299}, {-106.149783, 35.838279}},
	{{-106.426467, 35.815658}, {-106.399467, 35.815695}, {-106.371136, 35.815726}, {-106.343471, 35.815751}, {-106.315805, 35.815769}, {-106.288139, 35.815781}, {-106.260474, 35.815787}, {-106.232808, 35.815786}, {-106.205142, 35.815779}, {-106.177477, 35.815766}, {-106.149783, 35.815766}},
	{{-106.426467, 35.793248}, {-106.399467, 35.793248}, {-106.371136, 35.793248}, {-106.343471, 35.793248}, {-106.315805, 35.793248}, {-106.288129, 35.793248}, {-106.260471, 35.793253}, {-106.232813, 35.793253}, {-106.205155, 35.793245}, {-106.177497, 35.793232}, {}},
	{{}, {}, {}, {}, {}, {-106.288129, 35.770720}, {-106.260468, 35.770720}, {-106.232818, 35.770719}, {-106.205168, 35.770712}, {-106.177497, 35.770712}, {}},
	{{}, {}, {}, {}, {}, {}, {-106.260465, 35.748186}, {-106.232823, 35.748185}, {-106.205180, 35.748178}, {}, {}},
}

var laBBASpans = []RowSpan{
	{Start: 1, Count: 6},
	{Start: 1, Count: 6},
	{Start: 1, Count: 6},
	{Start: 1, Count: 6},
	{Start: 1, Count: 6},
	{Start: 1, Count: 6},
	{Start: 0, Count: 10},
	{Start: 0, Count: 9},
	{Start: 5, Count: 4},
	{Start: 6, Count: 2},
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the built-in LA-BBA table.
func Default() *Table {
	defaultOnce.Do(func() {
		t, err := NewTable(DefaultName, laBBACorners, laBBASpans)
		if err != nil {
			panic("grid: built-in table: " + err.Error())
		}
		defaultTable = t
	})
	return defaultTable
}
