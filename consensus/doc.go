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

// Package consensus turns a reference sequence plus a stream of variant
// observations into a single linear consensus sequence.
//
// At every reference coordinate the writer decides which byte(s) to emit.
// Homozygous calls are emitted as plain bases, heterozygous calls as IUPAC
// ambiguity codes, heterozygous deletions are wrapped in '[' ']' and
// heterozygous insertions in '(' ')'.  Brackets may nest, e.g. a deletion
// inside a longer deletion is written "[AC[G]T]".
//
// The pipeline for one region is:
//
//   ObservationSource -> Writer (clusters overlapping observations into merge
//   windows) -> Merge (builds a Chain of consensus nodes) -> Serialize (emits
//   bytes through an Encoder) -> sink, or CachedReversingWriter -> sink for
//   reverse-strand regions.
//
// A Writer is not safe for concurrent use.  Independent regions may be
// written concurrently with independent Writers and ObservationSources.
package consensus
