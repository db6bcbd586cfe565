// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package consensus

import (
	"io"

	"github.com/grailbio/base/tsv"
)

// Stats accumulates run-level counters.  Merge counts indel events,
// Serialize and Writer count emitted bytes.  A Stats is owned by a single
// Writer at a time; use Add to fold the Stats of concurrent Writers.
type Stats struct {
	Regions int64
	Windows int64

	// Emitted bytes by call type.
	Reference   int64
	Alternative int64
	Hetero      int64
	Unknown     int64

	// Indel events seen by Merge, and the bases they add or remove.
	Insertions      int64
	InsertionLength int64
	Deletions       int64
	DeletionLength  int64

	// Insertion nodes emitted and reference nodes suppressed by a homozygous
	// deletion.
	InsertedBases int64
	DeletedBases  int64
}

// Add folds o into s.
func (s *Stats) Add(o *Stats) {
	s.Regions += o.Regions
	s.Windows += o.Windows
	s.Reference += o.Reference
	s.Alternative += o.Alternative
	s.Hetero += o.Hetero
	s.Unknown += o.Unknown
	s.Insertions += o.Insertions
	s.InsertionLength += o.InsertionLength
	s.Deletions += o.Deletions
	s.DeletionLength += o.DeletionLength
	s.InsertedBases += o.InsertedBases
	s.DeletedBases += o.DeletedBases
}

// countReference tallies reference bytes copied through unchanged.
func (s *Stats) countReference(block []byte) {
	for _, b := range block {
		if m := iupacToMask[b]; m == 0 || m == maskAll {
			s.Unknown++
		} else {
			s.Reference++
		}
	}
}

// Report writes a two-column "name<TAB>count" summary of s to w.
func (s *Stats) Report(w io.Writer) error {
	tsvw := tsv.NewWriter(w)
	for _, row := range []struct {
		name string
		v    int64
	}{
		{"regions", s.Regions},
		{"merge_windows", s.Windows},
		{"reference_bases", s.Reference},
		{"alternative_bases", s.Alternative},
		{"hetero_bases", s.Hetero},
		{"unknown_bases", s.Unknown},
		{"insertions", s.Insertions},
		{"insertion_length", s.InsertionLength},
		{"inserted_bases", s.InsertedBases},
		{"deletions", s.Deletions},
		{"deletion_length", s.DeletionLength},
		{"deleted_bases", s.DeletedBases},
	} {
		tsvw.WriteString(row.name)
		tsvw.WriteInt64(row.v)
		if err := tsvw.EndLine(); err != nil {
			return err
		}
	}
	return tsvw.Flush()
}
