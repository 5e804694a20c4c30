package aggregate

import (
	"farmland/internal/feature"
	"farmland/internal/store"
)

// Alias is a display label for a field of the aggregate collection.
type Alias struct {
	Field string
	Label string
}

// FarmlandAliases are the labels applied after merging. Fields absent from
// the merged schema are skipped (old_polygon_id only exists in 2021 data).
var FarmlandAliases = []Alias{
	{"polygon_uuid", "筆ポリゴン"},
	{"land_type", "耕地の種類"},
	{"issue_year", "公開年度"},
	{"edit_year", "調製年度"},
	{"history", "履歴"},
	{"last_polygon_uuid", "前年筆ポリゴンID"},
	{"prev_last_polygon_uuid", "前前年筆ポリゴンID"},
	{"local_government_cd", "地方公共団体コード"},
	{"point_lng", "重心点座標（経度）"},
	{"point_lat", "重心点座標（緯度）"},
	{"old_polygon_id", "筆ポリゴンID（旧ID 付与ルール）"},
}

// LandTypeField is the classification field the land type domain is bound to.
const LandTypeField = "land_type"

// LandTypeDomain maps land type codes to paddy (田) and upland (畑).
var LandTypeDomain = store.Domain{
	Name:        "land_type_CD",
	Description: "耕地の種類",
	FieldType:   feature.FieldInteger,
	Codes: []store.CodedValue{
		{Code: 100, Label: "田"},
		{Code: 200, Label: "畑"},
	},
}
