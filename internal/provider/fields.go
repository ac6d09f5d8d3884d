package provider

// Each provider asks its model for its own key dialect. The mapper's rules
// translate these keys to canonical metrics.

var claudeFields = []FieldSpec{
	{Key: "bp_sys", Metric: "BloodPressureSystolic", Description: "systolic blood pressure, mmHg"},
	{Key: "bp_dia", Metric: "BloodPressureDiastolic", Description: "diastolic blood pressure, mmHg"},
	{Key: "hr", Metric: "HeartRate", Description: "heart rate / pulse, beats per minute"},
	{Key: "rr", Metric: "RespiratoryRate", Description: "respiratory rate, breaths per minute"},
	{Key: "temp_f", Metric: "BodyTemperature", Description: "body temperature, degrees Fahrenheit"},
	{Key: "spo2", Metric: "OxygenSaturation", Description: "oxygen saturation, percent"},
	{Key: "weight_lb", Metric: "BodyWeight", Description: "body weight, pounds"},
	{Key: "height_in", Metric: "BodyHeight", Description: "height, inches"},
	{Key: "bmi", Metric: "BodyMassIndex", Description: "body mass index, kg/m2"},
	{Key: "glucose", Metric: "BloodGlucose", Description: "blood glucose, mg/dL"},
	{Key: "a1c", Metric: "HbA1c", Description: "hemoglobin A1c, percent"},
	{Key: "chol_total", Metric: "TotalCholesterol", Description: "total cholesterol, mg/dL"},
	{Key: "chol_hdl", Metric: "HDLCholesterol", Description: "HDL cholesterol, mg/dL"},
	{Key: "chol_ldl", Metric: "LDLCholesterol", Description: "LDL cholesterol, mg/dL"},
	{Key: "trig", Metric: "Triglycerides", Description: "triglycerides, mg/dL"},
}

var openAIFields = []FieldSpec{
	{Key: "systolicPressure", Metric: "BloodPressureSystolic", Description: "systolic blood pressure in mmHg"},
	{Key: "diastolicPressure", Metric: "BloodPressureDiastolic", Description: "diastolic blood pressure in mmHg"},
	{Key: "heartRate", Metric: "HeartRate", Description: "heart rate in beats per minute"},
	{Key: "respiratoryRate", Metric: "RespiratoryRate", Description: "respiratory rate in breaths per minute"},
	{Key: "temperatureCelsius", Metric: "BodyTemperature", Description: "body temperature in degrees Celsius"},
	{Key: "oxygenSaturation", Metric: "OxygenSaturation", Description: "SpO2 in percent"},
	{Key: "weightKg", Metric: "BodyWeight", Description: "body weight in kilograms"},
	{Key: "heightCm", Metric: "BodyHeight", Description: "height in centimeters"},
	{Key: "bodyMassIndex", Metric: "BodyMassIndex", Description: "BMI in kg/m2"},
	{Key: "glucoseMmol", Metric: "BloodGlucose", Description: "blood glucose in mmol/L"},
	{Key: "hemoglobinA1c", Metric: "HbA1c", Description: "HbA1c in percent"},
	{Key: "totalCholesterolMmol", Metric: "TotalCholesterol", Description: "total cholesterol in mmol/L"},
	{Key: "hdlMmol", Metric: "HDLCholesterol", Description: "HDL cholesterol in mmol/L"},
	{Key: "ldlMmol", Metric: "LDLCholesterol", Description: "LDL cholesterol in mmol/L"},
	{Key: "triglyceridesMmol", Metric: "Triglycerides", Description: "triglycerides in mmol/L"},
}

var deepSeekFields = []FieldSpec{
	{Key: "systolic", Metric: "BloodPressureSystolic", Description: "systolic blood pressure (mmHg)"},
	{Key: "diastolic", Metric: "BloodPressureDiastolic", Description: "diastolic blood pressure (mmHg)"},
	{Key: "pulse", Metric: "HeartRate", Description: "pulse (bpm)"},
	{Key: "resp_rate", Metric: "RespiratoryRate", Description: "respiratory rate (breaths/min)"},
	{Key: "body_temp_c", Metric: "BodyTemperature", Description: "body temperature (°C)"},
	{Key: "spo2_pct", Metric: "OxygenSaturation", Description: "oxygen saturation (%)"},
	{Key: "weight_kg", Metric: "BodyWeight", Description: "weight (kg)"},
	{Key: "height_cm", Metric: "BodyHeight", Description: "height (cm)"},
	{Key: "bmi", Metric: "BodyMassIndex", Description: "body mass index (kg/m2)"},
	{Key: "fasting_glucose", Metric: "BloodGlucose", Description: "blood glucose (mg/dL)"},
	{Key: "hba1c_pct", Metric: "HbA1c", Description: "HbA1c (%)"},
	{Key: "total_cholesterol", Metric: "TotalCholesterol", Description: "total cholesterol (mg/dL)"},
	{Key: "hdl", Metric: "HDLCholesterol", Description: "HDL cholesterol (mg/dL)"},
	{Key: "ldl", Metric: "LDLCholesterol", Description: "LDL cholesterol (mg/dL)"},
	{Key: "triglycerides", Metric: "Triglycerides", Description: "triglycerides (mg/dL)"},
}
