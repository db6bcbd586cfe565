/*Package interval reads genomic intervals.

  Region strings ("chr1:11-20:-"), BED files and GTF annotations are parsed
  into Entry values, which carry 0-based half-open coordinates plus the
  optional name, feature type and strand used to label consensus records.

  BEDUnion is a position mask built from a set of intervals.  Overlapping
  intervals are merged, not tracked separately.  It assumes every position
  fits in a PosType, which is int32.
*/
package interval
