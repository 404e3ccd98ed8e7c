package catalog

import (
	"strings"
)

// Field is a canonical catalog column.
type Field string

const (
	FieldOwnerName    Field = "ownerName"
	FieldWorkshop     Field = "workshop"
	FieldArea         Field = "area"
	FieldMaterialCode Field = "materialCode"
	FieldMaterialName Field = "materialName"
	FieldUnit         Field = "unit"
)

// RequiredFields lists the canonical columns in the order they are checked.
var RequiredFields = []Field{
	FieldOwnerName,
	FieldWorkshop,
	FieldArea,
	FieldMaterialCode,
	FieldMaterialName,
	FieldUnit,
}

// synonyms maps each canonical field to the header spellings accepted for it.
// Matching ignores case and surrounding whitespace; earlier entries win when a
// row carries more than one spelling.
var synonyms = map[Field][]string{
	FieldOwnerName:    {"姓名", "名称", "负责人", "ownerName", "owner_name", "owner name", "owner", "name"},
	FieldWorkshop:     {"车间", "工作间", "workshop"},
	FieldArea:         {"区域", "库存区域", "存储区域", "仓库区域", "area", "location"},
	FieldMaterialCode: {"物料编码", "编码", "物料代码", "代码", "materialCode", "material_code", "material code", "code"},
	FieldMaterialName: {"物料名称", "材料名称", "物品名称", "materialName", "material_name", "material name"},
	FieldUnit:         {"单位", "计量单位", "单位名称", "unit", "uom"},
}

// TemplateHeaders are the preferred spellings written into upload templates.
var TemplateHeaders = []string{"姓名", "车间", "区域", "物料编码", "物料名称", "单位"}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

var synonymIndex = buildSynonymIndex()

func buildSynonymIndex() map[Field][]string {
	idx := make(map[Field][]string, len(synonyms))
	for field, names := range synonyms {
		normalized := make([]string, 0, len(names))
		for _, n := range names {
			normalized = append(normalized, normalizeHeader(n))
		}
		idx[field] = normalized
	}
	return idx
}

// normalizedRow is a raw row re-keyed by normalized header.
type normalizedRow map[string]string

func normalizeRow(raw map[string]string) normalizedRow {
	out := make(normalizedRow, len(raw))
	for k, v := range raw {
		key := normalizeHeader(k)
		if key == "" {
			continue
		}
		if _, exists := out[key]; exists {
			continue
		}
		out[key] = strings.TrimSpace(v)
	}
	return out
}

// lookup returns the value for field and whether any synonym header was present.
func (r normalizedRow) lookup(field Field) (string, bool) {
	for _, name := range synonymIndex[field] {
		if v, ok := r[name]; ok {
			return v, true
		}
	}
	return "", false
}

// Row is a parsed catalog line with canonical fields.
type Row struct {
	OwnerName    string
	Workshop     string
	Area         string
	MaterialCode string
	MaterialName string
	Unit         string
}

func (r Row) dedupKey() string {
	return r.OwnerName + "|" + r.Area + "|" + r.MaterialCode
}

func (r normalizedRow) toRow() Row {
	get := func(f Field) string {
		v, _ := r.lookup(f)
		return v
	}
	return Row{
		OwnerName:    get(FieldOwnerName),
		Workshop:     get(FieldWorkshop),
		Area:         get(FieldArea),
		MaterialCode: get(FieldMaterialCode),
		MaterialName: get(FieldMaterialName),
		Unit:         get(FieldUnit),
	}
}
