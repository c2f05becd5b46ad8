package detect

import (
	"testing"

	"github.com/alecthomas/assert/v2"
)

const fecHeader = "JournalCode|JournalLib|EcritureNum|EcritureDate|CompteNum|CompteLib|CompAuxNum|CompAuxLib|PieceRef|PieceDate|EcritureLib|Debit|Credit|EcritureLet|DateLet|ValidDate|Montantdevise|Idevise\n"

func TestDetect(t *testing.T) {
	tests := []struct {
		name      string
		filename  string
		head      []byte
		hint      Format
		want      Format
		delimiter rune
	}{
		{
			name:     "hint wins",
			filename: "export.xlsx",
			head:     []byte("a;b;c\n"),
			hint:     FormatDelimited,
			want:     FormatDelimited, delimiter: ';',
		},
		{
			name:     "spreadsheet extension",
			filename: "Grand livre.XLSX",
			head:     []byte("whatever"),
			want:     FormatSpreadsheet,
		},
		{
			name:     "zip signature",
			filename: "upload.bin",
			head:     []byte("PK\x03\x04rest"),
			want:     FormatSpreadsheet,
		},
		{
			name:     "ledger marker in filename",
			filename: "123456789FEC20231231.txt",
			head:     []byte("a;b;c\n1;2;3\n"),
			want:     FormatStrict, delimiter: ';',
		},
		{
			name:     "strict header",
			filename: "export.txt",
			head:     []byte(fecHeader),
			want:     FormatStrict, delimiter: '|',
		},
		{
			name:     "tab statistics",
			filename: "export.txt",
			head:     []byte("Code\tNum\tDate\nVT\t1\t20240101\n"),
			want:     FormatStrict, delimiter: '\t',
		},
		{
			name:     "semicolon csv",
			filename: "banque.csv",
			head:     []byte("Date;Libellé;Montant\n01/03/2024;\"Virement; client\";1 200,00\n"),
			want:     FormatDelimited, delimiter: ';',
		},
		{
			name:     "comma csv",
			filename: "bank.csv",
			head:     []byte("Date,Description,Amount\n2024-03-01,Payment,12.50\n"),
			want:     FormatDelimited, delimiter: ',',
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Detect(tt.filename, tt.head, tt.hint)
			assert.Equal(t, tt.want, d.Format)
			if tt.delimiter != 0 {
				assert.Equal(t, tt.delimiter, d.Delimiter)
			}
			assert.NotZero(t, d.Reason)
		})
	}
}

func TestDetectDelimiterIgnoresQuotedSections(t *testing.T) {
	text := []byte("a;\"x,y,z,w\";b\n")
	assert.Equal(t, ';', DetectDelimiter(text, FormatDelimited))
}

func TestDetectDelimiterDefaults(t *testing.T) {
	assert.Equal(t, '|', DetectDelimiter([]byte("single column"), FormatStrict))
	assert.Equal(t, ';', DetectDelimiter([]byte("single column"), FormatDelimited))
}

func TestDetectDelimiterTieBreak(t *testing.T) {
	assert.Equal(t, '|', DetectDelimiter([]byte("a|b;c"), FormatDelimited))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("FEC")
	assert.NoError(t, err)
	assert.Equal(t, FormatStrict, f)

	f, err = ParseFormat("")
	assert.NoError(t, err)
	assert.Equal(t, FormatUnknown, f)

	_, err = ParseFormat("pdf")
	assert.Error(t, err)
}
