// Package variant turns VCF records into consensus observations.
//
// A Policy decides which alleles of a record contribute to the consensus and
// with which provenance; a Filter drops records before sampling; Source
// combines both into a resettable consensus.ObservationSource over a VCF
// file.
package variant
