package mm

import "fmt"

func errRangeOrder(start, end uint64) error {
	return fmt.Errorf("mm: invalid page range [%#x, %#x): start must be < end", start, end)
}

func errRangeAlign(start, end, pageSize uint64) error {
	return fmt.Errorf("mm: page range [%#x, %#x) not aligned to page size %#x", start, end, pageSize)
}
