package entity

func text(name, label string, required, listed bool) Field {
	return Field{Name: name, Label: label, Type: FieldText, Required: required, Searchable: true, ListVisible: listed}
}

func ref(name, label, target string, required bool) Field {
	return Field{Name: name, Label: label, Type: FieldRef, Ref: target, Required: required, ListVisible: true}
}

// Catalog is the set of entities managed by the application.
func Catalog() []Config {
	return []Config{
		{
			Name: "countries", Route: "/paises", Title: "Países", PageSize: 20, DefaultSort: "name",
			Fields: []Field{
				text("name", "Nombre", true, true),
				{Name: "code", Label: "Código", Type: FieldText, Searchable: true, ListVisible: true},
			},
		},
		{
			Name: "states", Route: "/estados", Title: "Estados", PageSize: 20, DefaultSort: "name",
			Fields: []Field{
				text("name", "Nombre", true, true),
				ref("country_id", "País", "countries", true),
			},
		},
		{
			Name: "cities", Route: "/ciudades", Title: "Ciudades", PageSize: 20, DefaultSort: "name",
			Fields: []Field{
				text("name", "Nombre", true, true),
				ref("state_id", "Estado", "states", true),
			},
		},
		{
			Name: "dioceses", Route: "/diocesis", Title: "Diócesis", PageSize: 20, DefaultSort: "name",
			Fields: []Field{
				text("name", "Nombre", true, true),
				ref("city_id", "Ciudad", "cities", false),
				text("bishop", "Obispo", false, true),
			},
		},
		{
			Name: "parishes", Route: "/parroquias", Title: "Parroquias", PageSize: 20, DefaultSort: "name",
			Fields: []Field{
				text("name", "Nombre", true, true),
				ref("diocese_id", "Diócesis", "dioceses", true),
				ref("city_id", "Ciudad", "cities", false),
				text("address", "Dirección", false, false),
				{Name: "phone", Label: "Teléfono", Type: FieldText},
				{Name: "email", Label: "Correo", Type: FieldEmail, ListVisible: true},
			},
		},
		{
			Name: "charisms", Route: "/carismas", Title: "Carismas", PageSize: 50, DefaultSort: "name",
			Fields: []Field{
				text("name", "Nombre", true, true),
				text("description", "Descripción", false, false),
			},
		},
		{
			Name: "steps", Route: "/etapas", Title: "Etapas", PageSize: 50, DefaultSort: "order",
			Fields: []Field{
				text("name", "Nombre", true, true),
				{Name: "order", Label: "Orden", Type: FieldInt, Required: true, ListVisible: true},
			},
		},
		{
			Name: "communities", Route: "/comunidades", Title: "Comunidades", PageSize: 20, DefaultSort: "number",
			Fields: []Field{
				{Name: "number", Label: "Número", Type: FieldInt, Required: true, ListVisible: true},
				ref("parish_id", "Parroquia", "parishes", true),
				ref("step_id", "Etapa", "steps", false),
				{Name: "started_on", Label: "Fecha de inicio", Type: FieldDate, ListVisible: true},
				{Name: "active", Label: "Activa", Type: FieldBool, ListVisible: true},
			},
		},
		{
			Name: "people", Route: "/personas", Title: "Personas", PageSize: 25, DefaultSort: "last_name",
			Fields: []Field{
				text("first_name", "Nombre", true, true),
				text("last_name", "Apellidos", true, true),
				{Name: "email", Label: "Correo", Type: FieldEmail, Searchable: true, ListVisible: true},
				{Name: "phone", Label: "Teléfono", Type: FieldText},
				{Name: "birth_date", Label: "Fecha de nacimiento", Type: FieldDate},
				ref("community_id", "Comunidad", "communities", false),
				ref("charism_id", "Carisma", "charisms", false),
			},
		},
		{
			Name: "marriages", Route: "/matrimonios", Title: "Matrimonios", PageSize: 20, DefaultSort: "wedding_date",
			Fields: []Field{
				ref("husband_id", "Esposo", "people", true),
				ref("wife_id", "Esposa", "people", true),
				{Name: "wedding_date", Label: "Fecha de boda", Type: FieldDate, ListVisible: true},
				ref("community_id", "Comunidad", "communities", false),
			},
		},
		{
			Name: "teams", Route: "/equipos", Title: "Equipos", PageSize: 20, DefaultSort: "name",
			Fields: []Field{
				text("name", "Nombre", true, true),
				ref("community_id", "Comunidad", "communities", false),
				ref("leader_id", "Responsable", "people", false),
				{Name: "active", Label: "Activo", Type: FieldBool, ListVisible: true},
			},
		},
	}
}

// DefaultRegistry builds the registry over Catalog.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(Catalog()...)
	if err != nil {
		panic(err)
	}
	return r
}
