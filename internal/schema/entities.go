package schema

// Entity definitions for the Préparatoire GPF workflow. Field names match
// the upstream database columns, including the quirk that a handful of
// columns (name_pharmacy, name_patient, sex, associated_form) double as
// foreign keys; the relation descriptors make that explicit instead of
// encoding it in relation name strings.
//
// The user entity is registered as a relation target and for tenant
// scoping only; it has no REST routes of its own.

func init() {
	register("user", []Field{
		req("email", String),
		opt("first_name", String),
		opt("last_name", String),
		req("roq_user_id", String),
		req("tenant_id", String),
	}, nil)

	register("pharmacy", []Field{
		req("name", String),
		opt("description", String),
		opt("image", String),
		req("tenant_id", String),
		req("user_id", String),
	}, []Relation{
		belongsTo("user", "user_id", "user"),
	})

	register("client_profile", []Field{
		req("user_id", String),
		req("name_pharmacy", String),
	}, []Relation{
		hasManyOn("form_b", "name_pharmacy", "form_b", "name_pharmacy"),
		hasManyOn("form_c", "name_pharmacy", "form_c", "name_pharmacy"),
		hasManyOn("orders", "name_pharmacy", "order_current", "name_pharmacy"),
		hasManyOn("order_history_pharmacie", "name_pharmacy", "order_history_pharmacie", "name_pharmacy"),
		belongsTo("user", "user_id", "user"),
	})

	register("form_a", []Field{
		req("name_pharmacy", String),
		req("user_id", String),
		req("submission_date", Time),
		opt("order_id", String),
		opt("sex", String),
		opt("name_patient", String),
		opt("medication_details", String),
	}, []Relation{
		hasManyOn("form_b_by_patient", "name_patient", "form_b", "name_patient"),
		hasManyOn("form_b_by_sex", "sex", "form_b", "sex"),
		hasManyOn("form_c", "name_patient", "form_c", "name_patient"),
		hasMany("orders", "form_a_id", "order_current"),
		hasManyOn("order_history_client", "name_patient", "order_history_client", "name_patient"),
		hasMany("pdf_file", "associated_form", "pdf_file"),
		belongsToOn("client_profile", "name_pharmacy", "client_profile", "name_pharmacy"),
		belongsTo("user", "user_id", "user"),
		belongsTo("order", "order_id", "order_current"),
	})

	register("form_b", []Field{
		req("name_pharmacy", String),
		req("user_id", String),
		opt("name_patient", String),
		opt("sex", String),
		req("submission_date", Time),
		req("forme_pharmaceutique", Bool),
		req("modalite_d_administration", String),
		req("decision_sous_traiter_preparation", Bool),
		req("order_id", String),
		req("decision_realiser_preparation", Bool),
	}, []Relation{
		hasMany("orders", "form_b_id", "order_current"),
		belongsToOn("client_profile", "name_pharmacy", "client_profile", "name_pharmacy"),
		belongsTo("user", "user_id", "user"),
		belongsToOn("form_a_by_patient", "name_patient", "form_a", "name_patient"),
		belongsToOn("form_a_by_sex", "sex", "form_a", "sex"),
		belongsTo("order", "order_id", "order_current"),
	})

	register("form_c", []Field{
		req("user_id", String),
		req("name_pharmacy", String),
		req("order_id", String),
		opt("name_patient", String),
		req("controle_elements_disponible", Bool),
		req("controle_pharmacotechniques", Bool),
		req("decision_liberation", Bool),
	}, []Relation{
		hasMany("orders", "form_c_id", "order_current"),
		belongsTo("user", "user_id", "user"),
		belongsToOn("client_profile", "name_pharmacy", "client_profile", "name_pharmacy"),
		belongsTo("order", "order_id", "order_current"),
		belongsToOn("form_a", "name_patient", "form_a", "name_patient"),
	})

	register("order_current", []Field{
		req("order_date", Time),
		req("total_price", Float),
		req("user_id", String),
		opt("name_pharmacy", String),
		req("form_a_id", String),
		opt("form_b_id", String),
		opt("confirmation_order", Bool),
		opt("form_c_id", String),
		opt("delivery_order", Bool),
		opt("form_a_pdf_path", String),
		opt("form_b_pdf_path", String),
		opt("form_c_pdf_path", String),
	}, []Relation{
		hasMany("form_a_items", "order_id", "form_a"),
		hasMany("form_b_items", "order_id", "form_b"),
		hasMany("form_c_items", "order_id", "form_c"),
		hasMany("order_history_client", "order_id", "order_history_client"),
		hasMany("order_history_pharmacie", "order_id", "order_history_pharmacie"),
		belongsTo("user", "user_id", "user"),
		belongsToOn("client_profile", "name_pharmacy", "client_profile", "name_pharmacy"),
		belongsTo("form_a", "form_a_id", "form_a"),
		belongsTo("form_b", "form_b_id", "form_b"),
		belongsTo("form_c", "form_c_id", "form_c"),
	})

	// History rows snapshot an order's lifecycle: one order_id foreign key
	// plus scalar snapshot columns (statut, creation time, price).
	register("order_history_client", []Field{
		req("order_id", String),
		req("order_statut", String),
		req("order_created_at", String),
		opt("name_patient", String),
		opt("total_price", String),
	}, []Relation{
		belongsTo("order", "order_id", "order_current"),
		belongsToOn("form_a", "name_patient", "form_a", "name_patient"),
	})

	register("order_history_pharmacie", []Field{
		opt("user_id", String),
		req("name_pharmacy", String),
		req("order_id", String),
		req("order_statut", String),
		req("order_created_at", String),
		opt("total_price", String),
	}, []Relation{
		belongsTo("user", "user_id", "user"),
		belongsToOn("client_profile", "name_pharmacy", "client_profile", "name_pharmacy"),
		belongsTo("order", "order_id", "order_current"),
	})

	register("pdf_file", []Field{
		req("file_name", String),
		req("associated_form", String),
	}, []Relation{
		belongsTo("form_a", "associated_form", "form_a"),
	})

	validateRegistry()
}
