package extract

import (
	"strings"

	"github.com/sells-group/space-cli/internal/model"
)

// Category is one named entry of a keyword vocabulary.
type Category struct {
	Name     string
	Keywords []string
}

// Vocabulary is an ordered list of categories. Order decides which category
// wins when a caller only wants the first match.
type Vocabulary []Category

// ResistanceMarkers maps antibiotic names to gene/product keywords.
var ResistanceMarkers = Vocabulary{
	{"ampicillin", []string{"ampicillin", "bla", "amp", "beta-lactam", "penicillin"}},
	{"kanamycin", []string{"kanamycin", "kan", "aph", "neomycin", "neo"}},
	{"chloramphenicol", []string{"chloramphenicol", "cat", "cm"}},
	{"tetracycline", []string{"tetracycline", "tet"}},
	{"spectinomycin", []string{"spectinomycin", "spec", "aad"}},
	{"streptomycin", []string{"streptomycin", "str", "aada"}},
	{"gentamicin", []string{"gentamicin", "gent", "aac"}},
	{"hygromycin", []string{"hygromycin", "hyg", "hph"}},
	{"puromycin", []string{"puromycin", "puro", "pac"}},
	{"blasticidin", []string{"blasticidin", "bsd", "bsr"}},
	{"zeocin", []string{"zeocin", "ble", "sh ble"}},
	{"erythromycin", []string{"erythromycin", "erm"}},
	{"trimethoprim", []string{"trimethoprim", "dfr", "dhfr"}},
}

// ReporterGenes maps reporter names to keywords.
var ReporterGenes = Vocabulary{
	{"EGFP", []string{"egfp", "gfp", "green fluorescent"}},
	{"mCherry", []string{"mcherry", "cherry"}},
	{"mRFP", []string{"mrfp", "rfp", "red fluorescent"}},
	{"BFP", []string{"bfp", "blue fluorescent", "ebfp"}},
	{"YFP", []string{"yfp", "yellow fluorescent", "eyfp", "venus"}},
	{"CFP", []string{"cfp", "cyan fluorescent", "ecfp"}},
	{"tdTomato", []string{"tdtomato", "tomato"}},
	{"mVenus", []string{"mvenus"}},
	{"mCitrine", []string{"mcitrine", "citrine"}},
	{"luciferase", []string{"luciferase", "luc", "nanoluc", "fluc", "gluc"}},
	{"lacZ", []string{"lacz", "beta-galactosidase", "b-gal"}},
}

// ProteinTags maps epitope/affinity tag names to keywords.
var ProteinTags = Vocabulary{
	{"his", []string{"his-tag", "his6", "6xhis", "histidine tag", "polyhistidine"}},
	{"flag", []string{"flag", "dykddddk"}},
	{"myc", []string{"myc", "c-myc"}},
	{"ha", []string{"ha-tag", "hemagglutinin"}},
	{"gst", []string{"gst", "glutathione"}},
	{"mbp", []string{"mbp", "maltose binding"}},
	{"strep", []string{"strep-tag", "streptavidin"}},
	{"v5", []string{"v5 tag", "v5-tag"}},
	{"sumo", []string{"sumo"}},
	{"t7", []string{"t7 tag"}},
}

// PlasmidTypeKeywords lists expression-system categories in priority order.
var PlasmidTypeKeywords = Vocabulary{
	{string(model.PlasmidTypeMammalian), []string{"mammalian", "hek", "cho", "hela", "cos", "cmv", "sv40", "ef1a", "cag", "pgk"}},
	{string(model.PlasmidTypeBacterial), []string{"bacterial", "e. coli", "ecoli", "t7", "plac", "ptac", "para", "ptrc"}},
	{string(model.PlasmidTypeYeast), []string{"yeast", "saccharomyces", "pichia", "gal1", "gal10", "adh1"}},
	{string(model.PlasmidTypeLenti), []string{"lentivirus", "lentiviral", "ltr", "psi packaging"}},
	{string(model.PlasmidTypeCRISPR), []string{"crispr", "cas9", "cas12", "grna", "sgrna"}},
	{string(model.PlasmidTypeCloning), []string{"cloning", "entry", "gateway", "topo", "ta cloning"}},
	{string(model.PlasmidTypeInsect), []string{"insect", "baculovirus", "sf9", "sf21", "hi5"}},
	{string(model.PlasmidTypePlant), []string{"plant", "agrobacterium", "35s", "camv"}},
	{string(model.PlasmidTypeRetro), []string{"retrovirus", "retroviral", "mmlv", "moloney"}},
	{string(model.PlasmidTypeAdeno), []string{"adenovirus", "adenoviral"}},
	{string(model.PlasmidTypeAAV), []string{"aav", "adeno-associated"}},
	{string(model.PlasmidTypeShuttle), []string{"shuttle"}},
}

// CopyNumberKeywords is scanned over origin annotation text.
var CopyNumberKeywords = Vocabulary{
	{string(model.CopyNumberHigh), []string{"pbr322", "puc", "colei", "cole1", "pmb1", "high copy"}},
	{string(model.CopyNumberMedium), []string{"p15a", "medium copy"}},
	{string(model.CopyNumberLow), []string{"psc101", "f plasmid", "low copy", "single copy"}},
}

// originCopyTable maps origin-of-replication names to copy-number classes.
// Entries are compared against normalized origin names by substring, since
// detector output often suffixes a variant ("pUC19", "pBR322ori").
var originCopyTable = []struct {
	class model.CopyNumber
	names []string
}{
	{model.CopyNumberHigh, []string{"cole1", "colei", "puc", "pmb1", "pbr322"}},
	{model.CopyNumberMedium, []string{"p15a", "pbbr1", "psa"}},
	{model.CopyNumberLow, []string{"psc101", "f_plasmid", "rk2"}},
}

func normalizeOriginName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("-", "_", " ", "_").Replace(s)
}

// CopyNumberForOrigins returns the copy-number class of the first origin in
// names that appears in the origin table. Within one origin, high is
// checked before medium and low.
func CopyNumberForOrigins(names []string) (model.CopyNumber, bool) {
	for _, name := range names {
		n := normalizeOriginName(name)
		if n == "" {
			continue
		}
		for _, row := range originCopyTable {
			for _, entry := range row.names {
				if strings.Contains(n, entry) {
					return row.class, true
				}
			}
		}
	}
	return model.CopyNumberUnknown, false
}
