package transform

// ContactV1 maps contact records published under value.data.
var ContactV1 = Mapping{
	Name:     "contact/v1",
	IDPath:   DefaultIDPath,
	IDFields: []string{DefaultIDPath, CanonicalIDField},
	Rules: []Rule{
		{Path: "value.data.address.street", Field: "cs_address_street"},
		{Path: "value.data.address.city", Field: "cs_address_city"},
		{Path: "value.data.address.postalCode", Field: "cs_address_postal_code"},
		{Path: "value.data.description", Field: "cs_description"},
		{Path: "value.data.email", Field: "cs_email"},
		{Path: "value.data.fax", Field: "fax"},
		{Path: "value.data.name", Field: "cs_name"},
		{Path: "value.data.phone", Field: "phone"},
	},
}
