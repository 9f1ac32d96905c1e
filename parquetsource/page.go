package parquetsource

import (
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	deltacheckpoint "github.com/polarsignals/deltacheckpoint"
)

// filePage materializes one row group's worth of rows, split per
// requested action kind into a Block of rebased, locally-numbered leaf
// values.
type filePage struct {
	numRows int
	blocks  []filePageBlock
}

func (p *filePage) ChannelCount() int                          { return len(p.blocks) }
func (p *filePage) PositionCount() int                         { return p.numRows }
func (p *filePage) GetBlock(channel int) deltacheckpoint.Block { return p.blocks[channel] }

// filePageBlock holds, per row position, the rebased local leaf values
// for one action kind's column range.
type filePageBlock struct {
	rows [][]parquet.Value
}

func (b filePageBlock) IsNull(position int) bool {
	vals := b.rows[position]
	if len(vals) == 0 {
		return true
	}
	for _, v := range vals {
		if !v.IsNull() {
			return false
		}
	}
	return true
}

func (b filePageBlock) RowAt(position int) []parquet.Value {
	return b.rows[position]
}

// materializePage reads every row of rg and, for each requested action
// kind's column range, rebases that row's leaf values to a local
// zero-based column index the way fieldreader.Row expects.
func materializePage(rg parquet.RowGroup, ranges []fieldRange) (*filePage, error) {
	numRows := int(rg.NumRows())

	blocks := make([]filePageBlock, len(ranges))
	for i := range blocks {
		blocks[i] = filePageBlock{rows: make([][]parquet.Value, numRows)}
	}

	rows := rg.Rows()
	defer rows.Close()

	buf := make([]parquet.Row, 1)
	for pos := 0; pos < numRows; pos++ {
		n, err := rows.ReadRows(buf)
		if n == 0 {
			if err == nil || err == io.EOF {
				return nil, &deltacheckpoint.SchemaViolationError{
					Detail: fmt.Sprintf("row group reported %d rows but only %d were readable", numRows, pos),
				}
			}
			return nil, &deltacheckpoint.IOFailureError{Err: err}
		}

		full := []parquet.Value(buf[0])
		for ci, r := range ranges {
			blocks[ci].rows[pos] = rebase(full, r.offset, r.width)
		}
	}

	return &filePage{numRows: numRows, blocks: blocks}, nil
}

// rebase clones each retained value: ReadRows may reuse its byte buffers
// for the next row, but a page's blocks outlive the read loop.
func rebase(full []parquet.Value, offset, width int) []parquet.Value {
	out := make([]parquet.Value, 0, width)
	for _, v := range full {
		col := v.Column()
		if col >= offset && col < offset+width {
			out = append(out, v.Clone().Level(v.RepetitionLevel(), v.DefinitionLevel(), col-offset))
		}
	}
	return out
}
