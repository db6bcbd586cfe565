package variant_test

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/consensus/consensus"
	"github.com/grailbio/consensus/encoding/fasta"
	"github.com/grailbio/consensus/variant"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/klauspost/compress/gzip"
)

const sourceVCF = `##fileformat=VCFv4.2
##contig=<ID=chr1,length=12>
##contig=<ID=chr2>
#CHROM	POS	ID	REF	ALT	QUAL	FILTER	INFO	FORMAT	s1
chr1	5	.	C	T	.	PASS	.	GT	1/1
chr1	8	.	AAG	A	.	PASS	.	GT	0/1
chr1	9	.	A	C	.	lowq	.	GT	0/1
chr2	2	.	G	A	.	PASS	.	GT	./.
`

func writeVCF(t *testing.T, dir, name, data string) string {
	path := filepath.Join(dir, name)
	if strings.HasSuffix(name, ".gz") {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		_, err := gz.Write([]byte(data))
		assert.NoError(t, err)
		assert.NoError(t, gz.Close())
		data = buf.String()
	}
	assert.NoError(t, ioutil.WriteFile(path, []byte(data), 0644))
	return path
}

func drain(t *testing.T, s *variant.Source) []string {
	var obs []consensus.Observation
	for s.Scan() {
		obs = append(obs, s.Observation())
	}
	assert.NoError(t, s.Err())
	return describe(obs)
}

func TestSource(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup)
	ctx := context.Background()

	want := []string{
		"REFERENCE@4:C", "ALTERNATIVE@4:T",
		"REFERENCE@7:AAG", "HETERO@7:A",
	}
	for _, name := range []string{"test.vcf", "test.vcf.gz"} {
		path := writeVCF(t, tempDir, name, sourceVCF)
		s, err := variant.NewSource(ctx, path, variant.GenotypePolicy{}, variant.Filter{PassOnly: true})
		assert.NoError(t, err, name)
		expect.EQ(t, s.Contigs(), []string{"chr1", "chr2"}, name)
		n, ok := s.ContigLength("chr1")
		expect.True(t, ok, name)
		expect.EQ(t, n, 12, name)
		_, ok = s.ContigLength("chr2")
		expect.False(t, ok, name)

		expect.EQ(t, drain(t, s), want, name)
		expect.False(t, s.Scan(), name)
		expect.EQ(t, s.Stats, variant.SourceStats{Records: 4, Filtered: 1, Observations: 4}, name)

		assert.NoError(t, s.Reset(), name)
		expect.EQ(t, drain(t, s), want, name)
		assert.NoError(t, s.Close(), name)
		assert.NoError(t, s.Close(), name)
	}
}

func TestSourceUnsorted(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup)
	ctx := context.Background()

	header := "##fileformat=VCFv4.2\n#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\n"
	for name, body := range map[string]string{
		"position": "chr1\t5\t.\tC\tT\t.\t.\t.\nchr1\t3\t.\tC\tT\t.\t.\t.\n",
		"contig":   "chr1\t5\t.\tC\tT\t.\t.\t.\nchr2\t3\t.\tC\tT\t.\t.\t.\nchr1\t9\t.\tC\tT\t.\t.\t.\n",
	} {
		path := writeVCF(t, tempDir, name+".vcf", header+body)
		s, err := variant.NewSource(ctx, path, variant.AltPolicy{}, variant.Filter{})
		assert.NoError(t, err, name)
		for s.Scan() {
		}
		expect.NotNil(t, s.Err(), name)
		assert.NoError(t, s.Close(), name)
	}

	_, err := variant.NewSource(ctx, filepath.Join(tempDir, "missing.vcf"), variant.AltPolicy{}, variant.Filter{})
	expect.NotNil(t, err)
	path := writeVCF(t, tempDir, "noheader.vcf", "chr1\t5\t.\tC\tT\t.\t.\t.\n")
	_, err = variant.NewSource(ctx, path, variant.AltPolicy{}, variant.Filter{})
	expect.NotNil(t, err)
}

func TestSourceConsensus(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup)
	ctx := context.Background()

	path := writeVCF(t, tempDir, "test.vcf", sourceVCF)
	s, err := variant.NewSource(ctx, path, variant.GenotypePolicy{}, variant.Filter{PassOnly: true})
	assert.NoError(t, err)
	defer s.Close() // nolint: errcheck
	fa, err := fasta.New(strings.NewReader(">chr1\nAAAACAAAAGTT\n>chr2\nTGAC\n"))
	assert.NoError(t, err)
	ref := fasta.NewReferenceSource(fa)

	var buf bytes.Buffer
	assert.NoError(t, consensus.WriteRegion(consensus.Region{Contig: "chr1", End: -1}, s, ref, &buf, nil, consensus.DefaultOpts))
	expect.EQ(t, buf.String(), "AAAATAAA[AG]TT")

	buf.Reset()
	assert.NoError(t, consensus.WriteRegion(consensus.Region{Contig: "chr2", End: -1}, s, ref, &buf, nil, consensus.DefaultOpts))
	expect.EQ(t, buf.String(), "TGAC")
}

func TestSourceHeaderOrder(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup)
	ctx := context.Background()

	header := "##fileformat=VCFv4.2\n##contig=<ID=chrM,length=4>\n##contig=<ID=chr1,length=12>\n##contig=<ID=chr2,length=40>\n" +
		"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\n"
	path := writeVCF(t, tempDir, "reversed.vcf", header+"chr2\t3\t.\tC\tT\t.\t.\t.\nchr1\t5\t.\tC\tT\t.\t.\t.\n")
	s, err := variant.NewSource(ctx, path, variant.AltPolicy{}, variant.Filter{})
	assert.NoError(t, err)
	for s.Scan() {
	}
	assert.NotNil(t, s.Err())
	assert.HasSubstr(t, s.Err().Error(), "header order")
	assert.NoError(t, s.Close())

	var body strings.Builder
	for pos := 1; pos <= 40; pos += 2 {
		fmt.Fprintf(&body, "chr2\t%d\t.\tA\tG\t.\t.\t.\n", pos)
	}
	path = writeVCF(t, tempDir, "chr2.vcf", header+body.String())
	s, err = variant.NewSource(ctx, path, variant.AltPolicy{}, variant.Filter{})
	assert.NoError(t, err)
	defer s.Close() // nolint: errcheck
	i, ok := s.ContigIndex("chr1")
	expect.True(t, ok)
	expect.EQ(t, i, 1)
	_, ok = s.ContigIndex("chrX")
	expect.False(t, ok)

	// Contigs without records do not drain the file.
	w := consensus.NewWriter(s, nil, consensus.DefaultOpts)
	var stats consensus.Stats
	for _, contig := range []string{"chrM", "chr1"} {
		var buf bytes.Buffer
		assert.NoError(t, w.Write(consensus.Region{Contig: contig, End: -1}, &buf, &stats))
		expect.EQ(t, s.Stats.Records, int64(1), contig)
	}
	var buf bytes.Buffer
	assert.NoError(t, w.Write(consensus.Region{Contig: "chr2", End: -1}, &buf, &stats))
	expect.EQ(t, buf.Len(), 40)
	expect.EQ(t, s.Stats.Records, int64(20))
}
