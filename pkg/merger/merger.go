// Package merger outer-joins per-metric tables of one namespace into wide rows.
package merger

import (
	"fmt"
	"sort"

	apperrors "github.com/opscart/gke-vpa-recommender/pkg/errors"
	"github.com/opscart/gke-vpa-recommender/pkg/models"
)

// Merge joins tables on (window, dimension tuple). Every key present in any
// table yields exactly one row; columns without a value for that key stay nil.
// Rows are ordered by key.
func Merge(tables ...models.Table) ([]models.MergedRow, error) {
	index := make(map[models.Key]*models.MergedRow)
	seenColumns := make(map[models.Column]bool, len(tables))

	for _, t := range tables {
		if seenColumns[t.Column] {
			return nil, apperrors.New(apperrors.ErrCodeData,
				fmt.Sprintf("column %q supplied by more than one table", t.Column))
		}
		seenColumns[t.Column] = true

		for _, r := range t.Rows {
			if r.Column != t.Column {
				return nil, apperrors.New(apperrors.ErrCodeData,
					fmt.Sprintf("row for column %q in table %q", r.Column, t.Column))
			}
			row, ok := index[r.Key]
			if !ok {
				row = &models.MergedRow{Key: r.Key}
				index[r.Key] = row
			}
			if row.Get(t.Column) != nil {
				return nil, apperrors.New(apperrors.ErrCodeData,
					fmt.Sprintf("duplicate %s value for %s", t.Column, r.Key.Dimensions))
			}
			if err := row.Set(t.Column, r.Value); err != nil {
				return nil, apperrors.Wrap(apperrors.ErrCodeData, "merge", err)
			}
		}
	}

	out := make([]models.MergedRow, 0, len(index))
	for _, row := range index {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })

	return out, nil
}
