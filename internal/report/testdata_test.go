package report

const sampleXML = `<?xml version="1.0" encoding="utf-8"?>
<data month="5" day="1" year="2021">
  <site id="7">
    <name>Clinic A</name>
    <zipCode>02139</zipCode>
  </site>
  <vaccines>
    <brand name="Pfizer">
      <total>100</total>
      <firstShot>60</firstShot>
      <secondShot>40</secondShot>
    </brand>
    <brand name="Moderna">
      <total>50</total>
      <firstShot>30</firstShot>
      <secondShot>20</secondShot>
    </brand>
  </vaccines>
</data>`

const sampleJSON = `{
  "date": {"month": 5, "day": 1, "year": 2021},
  "site": {"id": 7, "name": "Clinic A", "zipCode": "02139"},
  "vaccines": [
    {"brand": "Pfizer", "total": 100, "firstShot": 60, "secondShot": 40},
    {"brand": "Moderna", "total": 50, "firstShot": 30, "secondShot": 20}
  ]
}`

func sampleRecord() *Record {
	return &Record{
		Date: Date{Month: IntOf(5), Day: IntOf(1), Year: IntOf(2021)},
		Site: Site{ID: IntOf(7), Name: "Clinic A", ZipCode: "02139"},
		Vaccines: []VaccineEntry{
			{Brand: "Pfizer", Total: IntOf(100), FirstShot: IntOf(60), SecondShot: IntOf(40)},
			{Brand: "Moderna", Total: IntOf(50), FirstShot: IntOf(30), SecondShot: IntOf(20)},
		},
	}
}
